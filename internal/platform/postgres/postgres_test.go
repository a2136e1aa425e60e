package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, NullableTime(nil))
	zero := time.Time{}
	assert.Nil(t, NullableTime(&zero))
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, at.UTC(), NullableTime(&at))

	assert.Nil(t, NullableString(""))
	assert.Equal(t, "x", NullableString("x"))

	assert.Nil(t, TimePtr(sql.NullTime{}))
	got := TimePtr(sql.NullTime{Time: at, Valid: true})
	if assert.NotNil(t, got) {
		assert.Equal(t, time.UTC, got.Location())
		assert.True(t, got.Equal(at))
	}
}
