// Package protocol implements the line-oriented wire format spoken between nodes and the
// registry. Every request uses its own TCP connection; each field is one newline-terminated
// UTF-8 line.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"opinionnet/datamodel/address"
)

const (
	PrefixUser        = "USER:"          // USER:<id>, then <listenPort>
	PrefixProposer    = "PROPOSER:"      // PROPOSER:<topic>
	PrefixGetUserInfo = "GET_USER_INFO:" // GET_USER_INFO:<id>

	notFoundAddress = "null"
	notFoundPort    = "0"

	AckRegistered = "Registration successful"
	AckUnknown    = "Unknown command"

	MaxLineLength = 64 * 1024
)

type RequestKind int

const (
	KindRegister RequestKind = iota + 1
	KindProposeTopic
	KindLookup
)

func (k RequestKind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindProposeTopic:
		return "propose"
	case KindLookup:
		return "lookup"
	}
	return "unknown"
}

// Request is a decoded registry request.
type Request struct {
	Kind   RequestKind
	UserID string // Register, Lookup
	Port   int    // Register
	Topic  string // ProposeTopic
}

// OpinionMessage is the fire-and-forget payload exchanged between peers.
type OpinionMessage struct {
	Topic   string
	Opinion float64
}

// LineReader reads protocol lines from a connection.
type LineReader struct {
	s *bufio.Scanner
}

func NewLineReader(r io.Reader) *LineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 512), MaxLineLength)
	return &LineReader{s: s}
}

// Next returns the next line without its terminator. A stream that ends before a line is
// available yields ErrMalformed; transport errors are returned as is.
func (lr *LineReader) Next() (string, error) {
	if lr.s.Scan() {
		return lr.s.Text(), nil
	}
	if err := lr.s.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, MaxLineLength)
		}
		return "", err
	}
	return "", fmt.Errorf("%w: missing line", ErrMalformed)
}

func writeLines(w io.Writer, lines ...string) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if strings.ContainsAny(l, "\r\n") {
			return fmt.Errorf("%w: field contains a line break", ErrMalformed)
		}
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// FormatOpinion renders an opinion as a decimal literal. Whole numbers keep a ".0" suffix so
// that the placeholder opinion is written as "0.0".
func FormatOpinion(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func ParseOpinion(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: opinion %q is not a number", ErrMalformed, s)
	}
	return v, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: port %q is not a number", ErrMalformed, s)
	}
	return p, nil
}

// ReadRequest decodes one registry request. The identifier is everything after the first
// colon of the command line.
func ReadRequest(lr *LineReader) (*Request, error) {
	line, err := lr.Next()
	if err != nil {
		return nil, err
	}

	if id, ok := strings.CutPrefix(line, PrefixUser); ok {
		portLine, err := lr.Next()
		if err != nil {
			return nil, err
		}
		port, err := parsePort(portLine)
		if err != nil {
			return nil, err
		}
		return &Request{Kind: KindRegister, UserID: id, Port: port}, nil
	}
	if topic, ok := strings.CutPrefix(line, PrefixProposer); ok {
		return &Request{Kind: KindProposeTopic, Topic: topic}, nil
	}
	if id, ok := strings.CutPrefix(line, PrefixGetUserInfo); ok {
		return &Request{Kind: KindLookup, UserID: id}, nil
	}

	return nil, fmt.Errorf("%w %q", ErrUnknownCommand, line)
}

func WriteRegister(w io.Writer, userID string, port int) error {
	return writeLines(w, PrefixUser+userID, strconv.Itoa(port))
}

func WriteProposeTopic(w io.Writer, topic string) error {
	return writeLines(w, PrefixProposer+topic)
}

func WriteLookup(w io.Writer, userID string) error {
	return writeLines(w, PrefixGetUserInfo+userID)
}

func WriteAck(w io.Writer, msg string) error {
	return writeLines(w, msg)
}

// WriteLookupResponse answers a lookup. A nil record is encoded as the not-found pair.
func WriteLookupResponse(w io.Writer, rec *address.Record) error {
	if rec == nil {
		return writeLines(w, notFoundAddress, notFoundPort)
	}
	return writeLines(w, rec.Address, strconv.Itoa(rec.Port))
}

// ReadLookupResponse decodes the two-line lookup answer. The not-found pair yields
// ErrNotFound.
func ReadLookupResponse(lr *LineReader) (address.Record, error) {
	addr, err := lr.Next()
	if err != nil {
		return address.Record{}, err
	}
	portLine, err := lr.Next()
	if err != nil {
		return address.Record{}, err
	}

	if addr == notFoundAddress {
		return address.Record{}, ErrNotFound
	}

	port, err := parsePort(portLine)
	if err != nil {
		return address.Record{}, err
	}
	rec := address.Record{Address: addr, Port: port}
	if !rec.Valid() {
		return address.Record{}, fmt.Errorf("%w: invalid record %s", ErrMalformed, rec)
	}
	return rec, nil
}

func WriteOpinion(w io.Writer, msg *OpinionMessage) error {
	if math.IsNaN(msg.Opinion) || math.IsInf(msg.Opinion, 0) {
		return fmt.Errorf("%w: opinion %v is not finite", ErrMalformed, msg.Opinion)
	}
	return writeLines(w, msg.Topic, FormatOpinion(msg.Opinion))
}

// ReadOpinion decodes exactly two lines: the topic, then the opinion.
func ReadOpinion(lr *LineReader) (*OpinionMessage, error) {
	topic, err := lr.Next()
	if err != nil {
		return nil, err
	}
	raw, err := lr.Next()
	if err != nil {
		return nil, err
	}
	v, err := ParseOpinion(raw)
	if err != nil {
		return nil, err
	}
	return &OpinionMessage{Topic: topic, Opinion: v}, nil
}
