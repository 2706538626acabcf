package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateSetSQL(t *testing.T) {
	var set updateSet
	assert.True(t, set.empty())

	set.add("name", "Apollo")
	set.add("client_id", nil)
	set.add("status", "Done")
	assert.False(t, set.empty())

	query, args := set.sql("projects", 7)
	assert.Equal(t, "UPDATE projects SET name = $1, client_id = $2, status = $3, updated_at = NOW() WHERE id = $4", query)
	assert.Equal(t, []any{"Apollo", nil, "Done", int64(7)}, args)
}

func TestUpdateSetSingleColumn(t *testing.T) {
	var set updateSet
	set.add("role", "ADMIN")

	query, args := set.sql("users", 3)
	assert.Equal(t, "UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2", query)
	assert.Equal(t, []any{"ADMIN", int64(3)}, args)
}
