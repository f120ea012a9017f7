package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUTF8(t *testing.T) {
	t.Parallel()

	ok := [][]byte{
		[]byte("a/b/c"),
		[]byte("héllo/wörld"),
		[]byte("日本語"),
		{0xEF, 0xBB, 0xBF}, // U+FEFF must not be skipped or stripped
	}
	for _, s := range ok {
		if err := checkUTF8(s, true); err != nil {
			t.Fatalf("%q: %v", s, err)
		}
	}

	bad := [][]byte{
		{'a', 0x00, 'b'},
		{0xC0, 0xAF},       // overlong
		{0xED, 0xA0, 0x80}, // surrogate half
		{0xFF},
	}
	for _, s := range bad {
		if err := checkUTF8(s, false); err != errInvalidUTF {
			t.Fatalf("%q: expected %v, got %v", s, errInvalidUTF, err)
		}
	}

	if err := checkUTF8([]byte("a/+"), true); err != errContainsWildCards {
		t.Fatalf("expected %v, got %v", errContainsWildCards, err)
	}
	if err := checkUTF8([]byte("a/#"), false); err != nil {
		t.Fatal(err)
	}
}

func TestCheckTopicFilter(t *testing.T) {
	t.Parallel()

	for _, f := range []string{"#", "+", "a/b", "a/+/c", "a/#", "+/+", "/", "sport/tennis/+/#"} {
		assert.NoError(t, CheckTopicFilter(f), f)
	}

	for _, f := range []string{"", "a/#/b", "a#", "a/b+", "#/a", "a/+b/c"} {
		assert.ErrorIs(t, CheckTopicFilter(f), ErrMalformedPayload, f)
	}

	assert.ErrorIs(t, CheckTopicFilter(strings.Repeat("a", 65536)), ErrStringTooLong)
}
