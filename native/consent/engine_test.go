package consent

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/events"
	"lineledger/core/state"
	"lineledger/core/types"
	"lineledger/native/positionid"
	"lineledger/storage"
)

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt *types.Event) { r.events = append(r.events, evt) }

var (
	lineAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	lenderAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	borrower   = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func newEngine(t *testing.T) (*Engine, *state.Manager, *recordingEmitter) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	emitter := &recordingEmitter{}
	engine := NewEngine(positionid.NewDeriver(nil))
	engine.SetState(mgr)
	engine.SetEmitter(emitter)
	return engine, mgr, emitter
}

func addCreditInput(t *testing.T, deposit int64) []byte {
	t.Helper()
	input, err := Encode(AddCredit{
		DrawnRate:    big.NewInt(1000),
		FacilityRate: big.NewInt(50),
		Amount:       big.NewInt(deposit),
		Token:        tokenAddr,
		Lender:       lenderAddr,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return input
}

func registered(input []byte, logIndex uint) *types.ChainEvent {
	return &types.ChainEvent{
		Kind:        types.KindMutualConsentRegistered,
		Contract:    lineAddr,
		BlockNumber: 100,
		BlockTime:   1_700_000_000,
		TxHash:      common.HexToHash("0xabc"),
		TxFrom:      borrower,
		TxInput:     input,
		LogIndex:    logIndex,
	}
}

func TestAddCreditProposalCreatesProvisionalPosition(t *testing.T) {
	engine, mgr, emitter := newEngine(t)
	if err := engine.HandleRegistered(context.Background(), registered(addCreditInput(t, 100), 1)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	id, err := positionid.Compute(lineAddr, lenderAddr, tokenAddr)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	pos, ok, err := mgr.Position(id)
	if err != nil || !ok {
		t.Fatalf("expected position, ok=%v err=%v", ok, err)
	}
	if pos.Status != types.PositionProposed || pos.Deposit.Int64() != 100 || pos.DrawnRate != 1000 || pos.FacilityRate != 50 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if pos.Lender != lenderAddr || pos.Token != tokenAddr || pos.Line != lineAddr || pos.Queue != types.NotInQueue {
		t.Fatalf("position not bound: %+v", pos)
	}

	evt := registered(nil, 1)
	proposal, ok, err := mgr.Proposal(evt.ID())
	if err != nil || !ok {
		t.Fatalf("expected proposal, ok=%v err=%v", ok, err)
	}
	if proposal.Kind != KindAddCredit || proposal.Position == nil || *proposal.Position != id || proposal.Maker != borrower {
		t.Fatalf("unexpected proposal %+v", proposal)
	}
	if len(proposal.Args) != 5 || proposal.Args[2] != "100" || proposal.Args[4] != types.AddressKey(lenderAddr) {
		t.Fatalf("unexpected args %v", proposal.Args)
	}
	if len(emitter.events) != 1 || emitter.events[0].Type != events.TypeCreditProposed {
		t.Fatalf("expected one proposal record, got %d", len(emitter.events))
	}
}

func TestReplayKeepsOpenPosition(t *testing.T) {
	engine, mgr, _ := newEngine(t)
	ctx := context.Background()
	input := addCreditInput(t, 100)
	if err := engine.HandleRegistered(ctx, registered(input, 1)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	id, _ := positionid.Compute(lineAddr, lenderAddr, tokenAddr)
	pos, _, _ := mgr.Position(id)
	pos.Status = types.PositionOpen
	pos.Principal = big.NewInt(40)
	pos.InterestAccrued = big.NewInt(3)
	if err := mgr.PutPosition(pos); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := engine.HandleRegistered(ctx, registered(addCreditInput(t, 999), 7)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	after, _, _ := mgr.Position(id)
	if after.Status != types.PositionOpen || after.Deposit.Int64() != 100 || after.Principal.Int64() != 40 || after.InterestAccrued.Int64() != 3 {
		t.Fatalf("open position was overwritten: %+v", after)
	}
	if _, ok, _ := mgr.Proposal(registered(nil, 7).ID()); !ok {
		t.Fatalf("expected the stale proposal to still be recorded")
	}
}

func TestUnknownSelectorIsIgnored(t *testing.T) {
	engine, mgr, emitter := newEngine(t)
	input := []byte{0xde, 0xad, 0xbe, 0xef, 0x00}
	if err := engine.HandleRegistered(context.Background(), registered(input, 1)); err != nil {
		t.Fatalf("unknown selector must not fail: %v", err)
	}
	count := 0
	if err := mgr.Proposals(func(*types.Proposal) bool { count++; return true }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 0 || len(emitter.events) != 0 {
		t.Fatalf("expected no mutation, got %d proposals %d records", count, len(emitter.events))
	}
}

func TestUndecodableArgsStillRecordProposal(t *testing.T) {
	engine, mgr, _ := newEngine(t)
	input := append(SelectorAddCredit[:], 0x01, 0x02)
	if err := engine.HandleRegistered(context.Background(), registered(input, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	proposal, ok, err := mgr.Proposal(registered(nil, 2).ID())
	if err != nil || !ok {
		t.Fatalf("expected proposal, ok=%v err=%v", ok, err)
	}
	if proposal.Position != nil || len(proposal.Args) != 0 {
		t.Fatalf("expected bare proposal, got %+v", proposal)
	}
	id, _ := positionid.Compute(lineAddr, lenderAddr, tokenAddr)
	if _, ok, _ := mgr.Position(id); ok {
		t.Fatalf("no position may be materialised")
	}
}

func TestSetRatesProposalReferencesPosition(t *testing.T) {
	engine, mgr, _ := newEngine(t)
	target := common.HexToHash("0x77")
	input, err := Encode(SetRates{Position: target, DrawnRate: big.NewInt(5), FacilityRate: big.NewInt(6)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	evt := registered(input, 3)
	evt.Params = map[string]any{"proposalId": common.HexToHash("0x99"), "taker": lenderAddr}
	if err := engine.HandleRegistered(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	proposal, ok, _ := mgr.Proposal(types.HashKey(common.HexToHash("0x99")))
	if !ok || proposal.Position == nil || *proposal.Position != target {
		t.Fatalf("unexpected proposal %+v", proposal)
	}
	if proposal.Taker == nil || *proposal.Taker != lenderAddr {
		t.Fatalf("expected taker to be recorded")
	}
	if _, ok, _ := mgr.Position(target); ok {
		t.Fatalf("setRates proposals must not create positions")
	}
}

func TestRevokedStampsProposalOnce(t *testing.T) {
	engine, mgr, emitter := newEngine(t)
	ctx := context.Background()
	evt := registered(addCreditInput(t, 100), 1)
	evt.Params = map[string]any{"proposalId": common.HexToHash("0x42")}
	if err := engine.HandleRegistered(ctx, evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	revoke := &types.ChainEvent{
		Kind:      types.KindMutualConsentRevoked,
		Contract:  lineAddr,
		BlockTime: 1_700_000_500,
		TxHash:    common.HexToHash("0xdef"),
		Params:    map[string]any{"proposalId": common.HexToHash("0x42")},
	}
	for i := 0; i < 2; i++ {
		if err := engine.HandleRevoked(ctx, revoke); err != nil {
			t.Fatalf("revoke: %v", err)
		}
	}
	proposal, _, _ := mgr.Proposal(types.HashKey(common.HexToHash("0x42")))
	if proposal.RevokedAt == nil || *proposal.RevokedAt != 1_700_000_500 {
		t.Fatalf("expected revocation time, got %+v", proposal.RevokedAt)
	}
	if len(emitter.events) != 2 || emitter.events[1].Type != events.TypeCreditProposalRevoked {
		t.Fatalf("expected proposal and revocation records, got %d", len(emitter.events))
	}

	// A replayed registration must not clear the revocation.
	if err := engine.HandleRegistered(ctx, evt); err != nil {
		t.Fatalf("replay: %v", err)
	}
	proposal, _, _ = mgr.Proposal(types.HashKey(common.HexToHash("0x42")))
	if proposal.RevokedAt == nil {
		t.Fatalf("revocation lost on replay")
	}
}

func TestRegisteringSameTermsAgainStartsNewRound(t *testing.T) {
	engine, mgr, emitter := newEngine(t)
	ctx := context.Background()
	consentID := common.HexToHash("0x42")
	first := registered(addCreditInput(t, 100), 1)
	first.Params = map[string]any{"proposalId": consentID}
	if err := engine.HandleRegistered(ctx, first); err != nil {
		t.Fatalf("handle: %v", err)
	}
	revoke := &types.ChainEvent{
		Kind:      types.KindMutualConsentRevoked,
		Contract:  lineAddr,
		BlockTime: 1_700_000_500,
		TxHash:    common.HexToHash("0xdef"),
		Params:    map[string]any{"proposalId": consentID},
	}
	if err := engine.HandleRevoked(ctx, revoke); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	again := registered(addCreditInput(t, 100), 4)
	again.TxHash = common.HexToHash("0xfff")
	again.BlockTime = 1_700_009_999
	again.Params = map[string]any{"proposalId": consentID}
	if err := engine.HandleRegistered(ctx, again); err != nil {
		t.Fatalf("second round: %v", err)
	}
	proposal, ok, err := mgr.Proposal(types.HashKey(consentID))
	if err != nil || !ok {
		t.Fatalf("expected proposal, ok=%v err=%v", ok, err)
	}
	if proposal.RevokedAt != nil || proposal.ProposedAt != 1_700_009_999 || proposal.RegisteredBy != again.ID() {
		t.Fatalf("expected a live second round, got proposedAt=%d revokedAt=%v", proposal.ProposedAt, proposal.RevokedAt)
	}
	last := emitter.events[len(emitter.events)-1]
	if last.Type != events.TypeCreditProposed || last.TxHash != again.TxHash || last.Timestamp != 1_700_009_999 {
		t.Fatalf("expected a proposal record for the second round, got %+v", last)
	}

	// Replaying the second round's log keeps it as is.
	if err := engine.HandleRevoked(ctx, &types.ChainEvent{
		Kind:      types.KindMutualConsentRevoked,
		Contract:  lineAddr,
		BlockTime: 1_700_010_000,
		TxHash:    common.HexToHash("0xeee"),
		Params:    map[string]any{"proposalId": consentID},
	}); err != nil {
		t.Fatalf("revoke second round: %v", err)
	}
	if err := engine.HandleRegistered(ctx, again); err != nil {
		t.Fatalf("replay: %v", err)
	}
	proposal, _, _ = mgr.Proposal(types.HashKey(consentID))
	if proposal.RevokedAt == nil || *proposal.RevokedAt != 1_700_010_000 {
		t.Fatalf("replay cleared the second round's revocation: %+v", proposal.RevokedAt)
	}
}

func TestProposalOverClosedPositionReopensIt(t *testing.T) {
	engine, mgr, _ := newEngine(t)
	ctx := context.Background()
	id, _ := positionid.Compute(lineAddr, lenderAddr, tokenAddr)
	closed := types.NewPosition(id)
	closed.Status = types.PositionClosed
	closed.Line = lineAddr
	closed.TotalInterestEarned = big.NewInt(77)
	if err := mgr.PutPosition(closed); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := engine.HandleRegistered(ctx, registered(addCreditInput(t, 250), 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	pos, _, _ := mgr.Position(id)
	if pos.Status != types.PositionProposed || pos.Deposit.Int64() != 250 {
		t.Fatalf("expected closed position to be proposed again, got %+v", pos)
	}
	if pos.TotalInterestEarned.Int64() != 77 {
		t.Fatalf("lifetime interest lost: %s", pos.TotalInterestEarned)
	}
}

func TestDecodeRoundTripsIncreaseCredit(t *testing.T) {
	want := IncreaseCredit{Position: common.HexToHash("0x05"), Amount: big.NewInt(12345)}
	input, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	call, err := Decode(input)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := call.(IncreaseCredit)
	if !ok || got.Position != want.Position || got.Amount.Cmp(want.Amount) != 0 {
		t.Fatalf("unexpected call %#v", call)
	}
	if _, err := Decode([]byte{0x01}); err == nil {
		t.Fatalf("expected short input to fail")
	}
}
