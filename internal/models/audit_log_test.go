package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditMetadata_ScanNilYieldsEmptyMap(t *testing.T) {
	var am AuditMetadata
	require.NoError(t, am.Scan(nil))
	assert.NotNil(t, am)
	assert.Empty(t, am)
}

func TestAuditMetadata_ScanRejectsNonBytes(t *testing.T) {
	var am AuditMetadata
	err := am.Scan(42)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestAuditMetadata_ValueNil(t *testing.T) {
	var am AuditMetadata
	v, err := am.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAuditMetadata_ScanJSON(t *testing.T) {
	var am AuditMetadata
	require.NoError(t, am.Scan([]byte(`{"identifier":"u***@e******.com","stage":2}`)))
	assert.Equal(t, "u***@e******.com", am["identifier"])
	assert.EqualValues(t, 2, am["stage"])
}
