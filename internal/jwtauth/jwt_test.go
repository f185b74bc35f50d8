package jwtauth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "pagemd/pkg/domain"
)

func newService() *JWTService {
	return NewJWTService("test-signing-key", "pagemd-platform", "pagemd-operators")
}

func TestOperatorTokenRoundTrip(t *testing.T) {
	svc := newService()
	operatorID := id.OperatorID(uuid.New())

	token, err := svc.GenerateOperatorToken(operatorID, "ops@pagemd.example", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, operatorID, claims.OperatorID)
	assert.Equal(t, "ops@pagemd.example", claims.Email)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateOperatorToken(id.OperatorID(uuid.New()), "ops@pagemd.example", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestWrongKeyRejected(t *testing.T) {
	token, err := newService().GenerateOperatorToken(id.OperatorID(uuid.New()), "ops@pagemd.example", time.Minute)
	require.NoError(t, err)

	other := NewJWTService("different-key", "pagemd-platform", "pagemd-operators")
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestGarbageRejected(t *testing.T) {
	_, err := newService().ValidateToken("not-a-jwt")
	assert.Error(t, err)
}
