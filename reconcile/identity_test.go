package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akinalp/ulak/models"
)

func TestCanonicalKey(t *testing.T) {
	assert := assert.New(t)

	// ServerID her zaman nonce'a tercih edilir
	assert.Equal("s:s1", CanonicalKey(models.Message{ServerID: "s1", Nonce: "c1"}))
	assert.Equal("s:s1", CanonicalKey(models.Message{ServerID: "s1"}))
	assert.Equal("c:c1", CanonicalKey(models.Message{Nonce: "c1"}))

	// Kimliksiz mesaj → boş key
	assert.Equal("", CanonicalKey(models.Message{Body: "hello"}))
}
