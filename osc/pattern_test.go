package osc_test

import (
	"testing"

	"github.com/klingtnet/goosc/osc"
	"github.com/stretchr/testify/assert"
)

func TestPatternRegisteredWildcardCrossesSegments(t *testing.T) {
	// a registered root wildcard matches an incoming address with more
	// path segments than the pattern itself.
	assert.True(t, osc.Matches("/*", "/foo"))
	assert.True(t, osc.Matches("/*", "/foo/bar"))
}

func TestPatternQueryWildcardDoesNotCrossSegments(t *testing.T) {
	// the reverse direction stays confined: a wildcard query address must
	// not pull in literal registrations with more path segments than the
	// query itself has.
	assert.False(t, osc.Matches("/foo/bar/1", "/*"))
}

func TestPatternQueryMatchesLiteralRegistration(t *testing.T) {
	assert.False(t, osc.Matches("/foo/bar/1", "/foo/*/2"))
	assert.True(t, osc.Matches("/foo/bar/2", "/foo/*/2"))
}

func TestPatternSymmetricMatching(t *testing.T) {
	// a literal registered address is found by a wildcard query address...
	assert.True(t, osc.Matches("/foo/bar", "/foo/*"))
	// ...and a wildcard registered address is found by a literal query.
	assert.True(t, osc.Matches("/foo/*", "/foo/bar"))
}

func TestPatternPlusIsLiteral(t *testing.T) {
	// '+' carries no special glob meaning in this address-pattern dialect,
	// unlike POSIX extended globs. It must not be confused with a
	// wildcard.
	assert.True(t, osc.Matches("/a+b", "/a+b"))
	assert.False(t, osc.Matches("/a+b", "/aaab"))
	assert.True(t, osc.Matches("/aaab", "/aaab"))
}

func TestPatternCharacterClass(t *testing.T) {
	assert.True(t, osc.Matches("/[abc]", "/a"))
	assert.True(t, osc.Matches("/[abc]", "/b"))
	assert.False(t, osc.Matches("/[abc]", "/d"))
	assert.True(t, osc.Matches("/[!abc]", "/d"))
	assert.False(t, osc.Matches("/[!abc]", "/a"))
	assert.True(t, osc.Matches("/[a-z]", "/m"))
}

func TestPatternAlternation(t *testing.T) {
	assert.True(t, osc.Matches("/{foo,bar}", "/foo"))
	assert.True(t, osc.Matches("/{foo,bar}", "/bar"))
	assert.False(t, osc.Matches("/{foo,bar}", "/baz"))
}

func TestPatternDoesNotCrossSegmentBoundaryWithQuestionMark(t *testing.T) {
	assert.False(t, osc.Matches("/fo?", "/foo/bar"))
}
