package testing

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// MockEndpoint is a scriptable in-memory ledger.
type MockEndpoint struct {
	mu sync.RWMutex

	// Configurable return values
	BlockhashValue solana.Hash
	LogsValue      []string

	// PendingPolls is how many QueryStatus calls per signature report pending
	// before Outcome is reported.
	PendingPolls int
	// Outcome is reported after PendingPolls. StatusPending never resolves.
	Outcome submitter.StatusState
	// ReportedCommitment is attached to confirmed observations. Empty means
	// the requested level is echoed back.
	ReportedCommitment submitter.Commitment
	Diagnostic         string

	// StatusFunc, when set, replaces the scripted status behaviour.
	StatusFunc func(sig solana.Signature, commitment submitter.Commitment) (submitter.Status, error)

	// Error responses
	BlockhashError error
	AcceptError    error
	QueryError     error
	LogsError      error

	// Submission tracking
	Accepted []solana.Signature
	RawTxs   [][]byte

	// Call counters
	CallCounts map[string]int

	slots    map[solana.Signature]uint64
	polls    map[solana.Signature]int
	nextSlot uint64
}

// NewMockEndpoint creates an endpoint that confirms every submission on the
// first status query.
func NewMockEndpoint() *MockEndpoint {
	return &MockEndpoint{
		BlockhashValue: solana.MustHashFromBase58("5NzX7jrPWeTkGsDnVnszdEa7T3Yyr3nSgyc78z3CwjWQ"),
		Outcome:        submitter.StatusConfirmed,
		CallCounts:     make(map[string]int),
		slots:          make(map[solana.Signature]uint64),
		polls:          make(map[solana.Signature]int),
		nextSlot:       100,
	}
}

func (m *MockEndpoint) incrementCallCount(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// GetCallCount returns the number of times a method was called
func (m *MockEndpoint) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// TotalCalls returns the number of calls across all methods.
func (m *MockEndpoint) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.CallCounts {
		total += n
	}
	return total
}

// SlotOf returns the slot assigned to an accepted signature.
func (m *MockEndpoint) SlotOf(sig solana.Signature) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.slots[sig]
	return slot, ok
}

// LatestBlockhash returns the configured blockhash
func (m *MockEndpoint) LatestBlockhash(ctx context.Context, _ submitter.Commitment) (solana.Hash, error) {
	m.incrementCallCount("LatestBlockhash")
	if err := ctx.Err(); err != nil {
		return solana.Hash{}, err
	}
	if m.BlockhashError != nil {
		return solana.Hash{}, m.BlockhashError
	}
	return m.BlockhashValue, nil
}

// AcceptSubmission records raw and assigns it a slot.
func (m *MockEndpoint) AcceptSubmission(ctx context.Context, raw []byte, _ submitter.DispatchOptions) (solana.Signature, error) {
	m.incrementCallCount("AcceptSubmission")
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}
	if m.AcceptError != nil {
		return solana.Signature{}, m.AcceptError
	}
	sig, err := FirstSignature(raw)
	if err != nil {
		return solana.Signature{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.RawTxs = append(m.RawTxs, append([]byte(nil), raw...))
	m.Accepted = append(m.Accepted, sig)
	m.nextSlot++
	m.slots[sig] = m.nextSlot
	return sig, nil
}

// QueryStatus plays back the scripted outcome.
func (m *MockEndpoint) QueryStatus(ctx context.Context, sig solana.Signature, commitment submitter.Commitment) (submitter.Status, error) {
	m.incrementCallCount("QueryStatus")
	if err := ctx.Err(); err != nil {
		return submitter.Status{}, err
	}
	if m.StatusFunc != nil {
		return m.StatusFunc(sig, commitment)
	}
	if m.QueryError != nil {
		return submitter.Status{}, m.QueryError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[sig]
	if !ok {
		return submitter.Status{State: submitter.StatusPending}, nil
	}
	m.polls[sig]++
	if m.polls[sig] <= m.PendingPolls || m.Outcome == submitter.StatusPending {
		return submitter.Status{State: submitter.StatusPending}, nil
	}

	reported := m.ReportedCommitment
	if reported == "" {
		reported = commitment
	}
	return submitter.Status{
		State:      m.Outcome,
		Slot:       slot,
		Commitment: reported,
		Diagnostic: m.Diagnostic,
	}, nil
}

// TransactionLogs returns the configured logs
func (m *MockEndpoint) TransactionLogs(_ context.Context, _ solana.Signature) ([]string, error) {
	m.incrementCallCount("TransactionLogs")
	if m.LogsError != nil {
		return nil, m.LogsError
	}
	return m.LogsValue, nil
}

const signatureLength = 64

var errShortTransaction = errors.New("transaction too short to carry a signature")

// FirstSignature reads the fee payer signature from a serialized
// transaction. It assumes fewer than 128 signatures, which keeps the compact
// length prefix at one byte.
func FirstSignature(raw []byte) (solana.Signature, error) {
	if len(raw) < 1+signatureLength || raw[0] == 0 {
		return solana.Signature{}, errShortTransaction
	}
	var sig solana.Signature
	copy(sig[:], raw[1:1+signatureLength])
	return sig, nil
}

// MockNotifier pushes statuses from a channel the test controls.
type MockNotifier struct {
	mu         sync.Mutex
	Updates    chan submitter.Status
	SubError   error
	Subscribed []solana.Signature
	// Block makes SubscribeSignature hang until its ctx ends, like a
	// websocket that never answers.
	Block bool
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Updates: make(chan submitter.Status, 4)}
}

func (n *MockNotifier) SubscribeSignature(ctx context.Context, sig solana.Signature, _ submitter.Commitment) (<-chan submitter.Status, error) {
	n.mu.Lock()
	if n.Block {
		n.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer n.mu.Unlock()
	if n.SubError != nil {
		return nil, n.SubError
	}
	n.Subscribed = append(n.Subscribed, sig)
	return n.Updates, nil
}

// MockSigner signs with an in-memory key and can be told to misbehave.
type MockSigner struct {
	mu    sync.Mutex
	Key   solana.PrivateKey
	Calls int

	SignError error
	// Corrupt flips a byte of every produced signature.
	Corrupt bool
}

func NewMockSigner() *MockSigner {
	return &MockSigner{Key: solana.NewWallet().PrivateKey}
}

func (s *MockSigner) PublicKey() solana.PublicKey {
	return s.Key.PublicKey()
}

func (s *MockSigner) Sign(payload []byte) (solana.Signature, error) {
	s.mu.Lock()
	s.Calls++
	s.mu.Unlock()
	if s.SignError != nil {
		return solana.Signature{}, s.SignError
	}
	sig, err := s.Key.Sign(payload)
	if err != nil {
		return solana.Signature{}, err
	}
	if s.Corrupt {
		sig[0] ^= 0xff
	}
	return sig, nil
}

// MockRecorder counts recorder events.
type MockRecorder struct {
	mu         sync.Mutex
	Dispatched int
	Results    []*submitter.Result
}

func (r *MockRecorder) RecordDispatched() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Dispatched++
}

func (r *MockRecorder) RecordResult(result *submitter.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, result)
}
