package subscribers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignerToken(t *testing.T) {
	s := NewSigner("secret-one")
	tok := s.Token("Ann@Example.com")

	assert.True(t, s.Valid("ann@example.com", tok))
	assert.True(t, s.Valid(" ANN@example.com", tok))
	assert.False(t, s.Valid("bob@example.com", tok))
	assert.False(t, s.Valid("ann@example.com", ""))
	assert.False(t, s.Valid("ann@example.com", "not base64!"))
	assert.False(t, NewSigner("secret-two").Valid("ann@example.com", tok))
}
