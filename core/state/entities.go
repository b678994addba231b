package state

import (
	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/types"
)

func (m *Manager) Line(id common.Address) (*types.Line, bool, error) {
	return load[types.Line](m, lineKey(id))
}

func (m *Manager) PutLine(line *types.Line) error {
	return m.KVPut(lineKey(line.ID), line)
}

// Lines visits every stored line in key order.
func (m *Manager) Lines(fn func(*types.Line) bool) error {
	return scan(m, linePrefix, fn)
}

func (m *Manager) Position(id common.Hash) (*types.Position, bool, error) {
	pos, ok, err := load[types.Position](m, positionKey(id))
	if ok {
		pos.EnsureDefaults()
	}
	return pos, ok, err
}

func (m *Manager) PutPosition(pos *types.Position) error {
	return m.KVPut(positionKey(pos.ID), pos)
}

func (m *Manager) Proposal(id string) (*types.Proposal, bool, error) {
	return load[types.Proposal](m, proposalKey(id))
}

func (m *Manager) PutProposal(p *types.Proposal) error {
	return m.KVPut(proposalKey(p.ID), p)
}

// Proposals visits every stored proposal in key order.
func (m *Manager) Proposals(fn func(*types.Proposal) bool) error {
	return scan(m, proposalPrefix, fn)
}

func (m *Manager) Escrow(id common.Address) (*types.Escrow, bool, error) {
	return load[types.Escrow](m, escrowKey(id))
}

func (m *Manager) PutEscrow(e *types.Escrow) error {
	return m.KVPut(escrowKey(e.ID), e)
}

func (m *Manager) EscrowDeposit(id string) (*types.EscrowDeposit, bool, error) {
	return load[types.EscrowDeposit](m, depositKey(id))
}

func (m *Manager) PutEscrowDeposit(d *types.EscrowDeposit) error {
	return m.KVPut(depositKey(d.ID), d)
}

// EscrowDeposits visits the deposits held by escrow.
func (m *Manager) EscrowDeposits(escrow common.Address, fn func(*types.EscrowDeposit) bool) error {
	return scan(m, prefixed(depositPrefix, types.AddressKey(escrow)+"-"), fn)
}

func (m *Manager) SpigotController(id common.Address) (*types.SpigotController, bool, error) {
	return load[types.SpigotController](m, controllerKey(id))
}

func (m *Manager) PutSpigotController(c *types.SpigotController) error {
	return m.KVPut(controllerKey(c.ID), c)
}

func (m *Manager) Spigot(id string) (*types.Spigot, bool, error) {
	return load[types.Spigot](m, spigotKey(id))
}

func (m *Manager) PutSpigot(s *types.Spigot) error {
	return m.KVPut(spigotKey(s.ID), s)
}

// Spigots visits the bindings owned by controller.
func (m *Manager) Spigots(controller common.Address, fn func(*types.Spigot) bool) error {
	return scan(m, prefixed(spigotPrefix, types.AddressKey(controller)+"-"), fn)
}

func (m *Manager) RevenueSummary(id string) (*types.SpigotRevenueSummary, bool, error) {
	return load[types.SpigotRevenueSummary](m, summaryKey(id))
}

func (m *Manager) PutRevenueSummary(s *types.SpigotRevenueSummary) error {
	return m.KVPut(summaryKey(s.ID), s)
}

func (m *Manager) LineReserve(id string) (*types.LineReserve, bool, error) {
	return load[types.LineReserve](m, reserveKey(id))
}

func (m *Manager) PutLineReserve(r *types.LineReserve) error {
	return m.KVPut(reserveKey(r.ID), r)
}

func (m *Manager) Token(addr common.Address) (*types.Token, bool, error) {
	return load[types.Token](m, tokenKey(addr))
}

func (m *Manager) PutToken(t *types.Token) error {
	return m.KVPut(tokenKey(t.Address), t)
}
