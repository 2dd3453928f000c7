package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx   *fakeTx
	opts pgx.TxOptions
	err  error
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	require.NoError(t, WithTx(context.Background(), b, LockingTxOptions, func(pgx.Tx) error { return nil }))
	require.True(t, b.tx.committed)
	require.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("insufficient stock")
	err := WithTx(context.Background(), b, LockingTxOptions, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, b.tx.committed)
	require.True(t, b.tx.rolledBack)
}

func TestWithTxWrapsBeginAndCommitFailures(t *testing.T) {
	err := WithTx(context.Background(), &fakeBeginner{err: errors.New("pool closed")}, LockingTxOptions, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "begin tx")

	b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	err = WithTx(context.Background(), b, LockingTxOptions, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "commit tx")
}
