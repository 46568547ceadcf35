package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opinionnet/datamodel/address"
)

func readerFor(s string) *LineReader {
	return NewLineReader(strings.NewReader(s))
}

func TestReadRequest(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Request
	}{
		{"register", "USER:alice\n5001\n", Request{Kind: KindRegister, UserID: "alice", Port: 5001}},
		{"register crlf", "USER:alice\r\n5001\r\n", Request{Kind: KindRegister, UserID: "alice", Port: 5001}},
		{"register no trailing newline", "USER:bob\n42", Request{Kind: KindRegister, UserID: "bob", Port: 42}},
		{"id keeps colons", "USER:a:b\n7\n", Request{Kind: KindRegister, UserID: "a:b", Port: 7}},
		{"propose", "PROPOSER:climate\n", Request{Kind: KindProposeTopic, Topic: "climate"}},
		{"lookup", "GET_USER_INFO:carol\n", Request{Kind: KindLookup, UserID: "carol"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ReadRequest(readerFor(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *req)
		})
	}
}

func TestReadRequestMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"HELLO\n",
		"USER:alice\n",
		"USER:alice\nnot-a-port\n",
	} {
		_, err := ReadRequest(readerFor(in))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestRequestWriters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRegister(&buf, "alice", 5001))
	assert.Equal(t, "USER:alice\n5001\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteProposeTopic(&buf, "climate"))
	assert.Equal(t, "PROPOSER:climate\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteLookup(&buf, "bob"))
	assert.Equal(t, "GET_USER_INFO:bob\n", buf.String())

	assert.ErrorIs(t, WriteLookup(&buf, "evil\nPROPOSER:x"), ErrMalformed)
}

func TestLookupResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLookupResponse(&buf, &address.Record{Address: "10.1.2.3", Port: 8080}))
	assert.Equal(t, "10.1.2.3\n8080\n", buf.String())

	rec, err := ReadLookupResponse(NewLineReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, address.Record{Address: "10.1.2.3", Port: 8080}, rec)

	buf.Reset()
	require.NoError(t, WriteLookupResponse(&buf, nil))
	assert.Equal(t, "null\n0\n", buf.String())
	_, err = ReadLookupResponse(NewLineReader(&buf))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ReadLookupResponse(readerFor("10.1.2.3\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ReadLookupResponse(readerFor("10.1.2.3\n70000\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOpinionMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOpinion(&buf, &OpinionMessage{Topic: "t", Opinion: 0.8}))
	assert.Equal(t, "t\n0.8\n", buf.String())

	msg, err := ReadOpinion(NewLineReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "t", msg.Topic)
	assert.Equal(t, 0.8, msg.Opinion)
}

func TestReadOpinionMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"topic\n",
		"topic\nhigh\n",
		"topic\nNaN\n",
		"topic\n+Inf\n",
	} {
		_, err := ReadOpinion(readerFor(in))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestReadOpinionAcceptsJavaStyleLiterals(t *testing.T) {
	msg, err := ReadOpinion(readerFor("t\n1.0E-4\n"))
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, msg.Opinion, 1e-12)
}

func TestFormatOpinion(t *testing.T) {
	assert.Equal(t, "0.0", FormatOpinion(0))
	assert.Equal(t, "1.0", FormatOpinion(1))
	assert.Equal(t, "0.25", FormatOpinion(0.25))
	assert.Equal(t, "-3.0", FormatOpinion(-3))
}

func TestLineTooLong(t *testing.T) {
	long := strings.Repeat("x", MaxLineLength+1) + "\n"
	_, err := readerFor(long).Next()
	assert.ErrorIs(t, err, ErrMalformed)
}
