package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

// Files embeds the SQL migrations.
//
//go:embed *.sql
var Files embed.FS

// Script is one migration file.
type Script struct {
	Name string
	SQL  string
}

// Up returns the up migrations in version order.
func Up() ([]Script, error) {
	return load(".up.sql", false)
}

// Down returns the down migrations in reverse version order.
func Down() ([]Script, error) {
	return load(".down.sql", true)
}

func load(suffix string, reverse bool) ([]Script, error) {
	names, err := fs.Glob(Files, "*"+suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}
	out := make([]Script, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(Files, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Script{Name: strings.TrimSuffix(name, suffix), SQL: string(body)})
	}
	return out, nil
}
