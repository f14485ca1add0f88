package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

func TestInjectFilter_NoFilters(t *testing.T) {
	out, args, err := InjectFilter("SELECT * FROM t", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t", out)
	assert.Empty(t, args)
}

func TestInjectFilter_AddsWhere(t *testing.T) {
	out, args, err := InjectFilter("SELECT * FROM t", map[string]interface{}{"city": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE (city = ?)", out)
	assert.Equal(t, []interface{}{"Berlin"}, args)
}

func TestInjectFilter_ExistingWhereGetsAnd(t *testing.T) {
	out, args, err := InjectFilter("SELECT * FROM t WHERE a = 1", map[string]interface{}{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = 1 AND (b = ?)", out)
	assert.Equal(t, []interface{}{2}, args)
}

func TestInjectFilter_InsertsBeforeOrderBy(t *testing.T) {
	out, _, err := InjectFilter("SELECT * FROM t ORDER BY a", map[string]interface{}{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE (b = ?) ORDER BY a", out)
}

func TestInjectFilter_SubqueryWhereIsNotTopLevel(t *testing.T) {
	// The inner WHERE is at paren depth 1; the splice must still add a
	// top-level WHERE.
	out, _, err := InjectFilter(
		"SELECT * FROM (SELECT * FROM u WHERE x = 1) s", map[string]interface{}{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT * FROM u WHERE x = 1) s WHERE (b = ?)", out)
}

func TestInjectFilter_QuotedKeywordIgnored(t *testing.T) {
	out, _, err := InjectFilter(
		"SELECT * FROM t WHERE note = 'use ORDER BY here'", map[string]interface{}{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE note = 'use ORDER BY here' AND (b = ?)", out)
}

func TestInjectFilter_Encodings(t *testing.T) {
	t.Run("null", func(t *testing.T) {
		out, args, err := InjectFilter("SELECT * FROM t", map[string]interface{}{"a": nil})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE (a IS NULL)", out)
		assert.Empty(t, args)
	})

	t.Run("in list", func(t *testing.T) {
		out, args, err := InjectFilter("SELECT * FROM t",
			map[string]interface{}{"a": []interface{}{1, 2, 3}})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE (a IN (?, ?, ?))", out)
		assert.Equal(t, []interface{}{1, 2, 3}, args)
	})

	t.Run("range", func(t *testing.T) {
		out, args, err := InjectFilter("SELECT * FROM t",
			map[string]interface{}{"a": map[string]interface{}{"min": 1, "max": 9}})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE (a BETWEEN ? AND ?)", out)
		assert.Equal(t, []interface{}{1, 9}, args)
	})

	t.Run("min only", func(t *testing.T) {
		out, args, err := InjectFilter("SELECT * FROM t",
			map[string]interface{}{"a": map[string]interface{}{"min": 5}})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE (a >= ?)", out)
		assert.Equal(t, []interface{}{5}, args)
	})

	t.Run("empty in list rejected", func(t *testing.T) {
		_, _, err := InjectFilter("SELECT * FROM t",
			map[string]interface{}{"a": []interface{}{}})
		require.Error(t, err)
	})
}

func TestInjectFilter_SanitizesColumnName(t *testing.T) {
	// A hostile column name loses everything outside the identifier
	// alphabet; the value still binds as a parameter.
	out, args, err := InjectFilter("SELECT * FROM t",
		map[string]interface{}{"a; DROP TABLE t--": "x"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE (aDROPTABLEt = ?)", out)
	assert.Equal(t, []interface{}{"x"}, args)
}

func TestInjectFilter_RejectsUnusableColumn(t *testing.T) {
	_, _, err := InjectFilter("SELECT * FROM t", map[string]interface{}{"'; --": "x"})
	require.Error(t, err)
	assert.IsType(t, &domain.ValidationError{}, err)
}

func TestInjectSort(t *testing.T) {
	t.Run("appends", func(t *testing.T) {
		out, err := InjectSort("SELECT * FROM t", "name", domain.SortDesc)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t ORDER BY name DESC", out)
	})

	t.Run("merges before existing keys", func(t *testing.T) {
		out, err := InjectSort("SELECT * FROM t ORDER BY a ASC", "name", domain.SortAsc)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t ORDER BY name ASC, a ASC", out)
	})

	t.Run("inserts before limit", func(t *testing.T) {
		out, err := InjectSort("SELECT * FROM t LIMIT 10", "name", "")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t ORDER BY name ASC LIMIT 10", out)
	})

	t.Run("rejects unusable column", func(t *testing.T) {
		_, err := InjectSort("SELECT * FROM t", "()", domain.SortAsc)
		require.Error(t, err)
	})
}

func TestInjectPagination(t *testing.T) {
	t.Run("appends limit and offset", func(t *testing.T) {
		out := InjectPagination("SELECT * FROM t", 2, 5)
		assert.Equal(t, "SELECT * FROM t LIMIT 5 OFFSET 5", out)
	})

	t.Run("replaces existing limit", func(t *testing.T) {
		out := InjectPagination("SELECT * FROM t LIMIT 100", 1, 10)
		assert.Equal(t, "SELECT * FROM t LIMIT 10 OFFSET 0", out)
	})

	t.Run("keeps subquery limit", func(t *testing.T) {
		out := InjectPagination("SELECT * FROM (SELECT * FROM u LIMIT 3) s", 1, 10)
		assert.Equal(t, "SELECT * FROM (SELECT * FROM u LIMIT 3) s LIMIT 10 OFFSET 0", out)
	})
}

func TestBuildCountQuery(t *testing.T) {
	t.Run("strips order by and limit", func(t *testing.T) {
		out := BuildCountQuery("SELECT * FROM t ORDER BY a LIMIT 10")
		assert.Equal(t, "SELECT COUNT(*) FROM (SELECT * FROM t) AS count_query", out)
	})

	t.Run("strips bare limit", func(t *testing.T) {
		out := BuildCountQuery("SELECT * FROM t LIMIT 10")
		assert.Equal(t, "SELECT COUNT(*) FROM (SELECT * FROM t) AS count_query", out)
	})

	t.Run("keeps filters", func(t *testing.T) {
		out := BuildCountQuery("SELECT * FROM t WHERE a = 1;")
		assert.Equal(t, "SELECT COUNT(*) FROM (SELECT * FROM t WHERE a = 1) AS count_query", out)
	})
}

func TestMaskLiterals(t *testing.T) {
	masked := maskLiterals("SELECT 'a(b)c', x FROM t")
	assert.Equal(t, "SELECT '     ', x FROM t", masked)
	assert.Len(t, masked, len("SELECT 'a(b)c', x FROM t"))
}
