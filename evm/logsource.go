package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"lineledger/core/types"
)

// needsTx lists the kinds whose handlers read the originating transaction.
var needsTx = map[types.EventKind]bool{
	types.KindMutualConsentRegistered: true,
	types.KindDeployedSecuredLine:     true,
	types.KindDeployedSpigot:          true,
	types.KindDeployedEscrow:          true,
}

type watchStore interface {
	Watched() ([]common.Address, error)
	PutWatched([]common.Address) error
}

// LineModules resolves the escrow and spigot attached to a line.
type LineModules interface {
	Escrow(ctx context.Context, line common.Address) (common.Address, error)
	Spigot(ctx context.Context, line common.Address) (common.Address, error)
}

// LogSource turns the logs of watched contracts into ordered chain events. New
// contracts announced by factories or by a line deployment are followed from
// the log that announced them.
type LogSource struct {
	client    *Client
	events    map[common.Hash]abi.Event
	topics    []common.Hash
	factories map[common.Address]bool
	retiredAt map[common.Address]uint64
	watched   map[common.Address]bool
	store     watchStore
	modules   LineModules
	times     map[uint64]uint64
	logger    *slog.Logger
}

// NewLogSource builds a source following factories and the given seed
// contracts plus whatever store remembers from earlier runs.
func NewLogSource(client *Client, store watchStore, modules LineModules, factories, seeds []common.Address, logger *slog.Logger) (*LogSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LogSource{
		client:    client,
		events:    make(map[common.Hash]abi.Event),
		factories: make(map[common.Address]bool),
		retiredAt: make(map[common.Address]uint64),
		watched:   make(map[common.Address]bool),
		store:     store,
		modules:   modules,
		times:     make(map[uint64]uint64),
		logger:    logger,
	}
	for _, contract := range []abi.ABI{lineContract, escrowContract, spigotContract, factoryContract} {
		for _, ev := range contract.Events {
			s.events[ev.ID] = ev
			s.topics = append(s.topics, ev.ID)
		}
	}
	sort.Slice(s.topics, func(i, j int) bool { return s.topics[i].Hex() < s.topics[j].Hex() })
	for _, f := range factories {
		s.factories[f] = true
		s.watched[f] = true
	}
	for _, addr := range seeds {
		s.watched[addr] = true
	}
	if store != nil {
		stored, err := store.Watched()
		if err != nil {
			return nil, fmt.Errorf("load watched contracts: %w", err)
		}
		for _, addr := range stored {
			s.watched[addr] = true
		}
	}
	return s, nil
}

// Watching reports whether logs of addr are followed.
func (s *LogSource) Watching(addr common.Address) bool { return s.watched[addr] }

// Head returns the latest block number.
func (s *LogSource) Head(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

// Fetch returns the decoded events of watched contracts in [from, to] ordered
// by block and log index.
func (s *LogSource) Fetch(ctx context.Context, from, to uint64) ([]*types.ChainEvent, error) {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    [][]common.Hash{s.topics},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	decoded := make(map[int]*types.ChainEvent, len(logs))
	decodeAt := func(i int) *types.ChainEvent {
		if evt, seen := decoded[i]; seen {
			return evt
		}
		evt := s.decodeLog(ctx, &logs[i])
		decoded[i] = evt
		return evt
	}

	// Contracts announced inside the batch must be watched before any log is
	// filtered: a line logs its own deployment ahead of the factory log that
	// announces it, and a discovered line may announce further modules.
	discovered := false
	announced := make(map[int]bool)
	for grew := true; grew; {
		grew = false
		for i := range logs {
			if announced[i] || !s.announces(&logs[i]) {
				continue
			}
			evt := decodeAt(i)
			if evt == nil {
				continue
			}
			announced[i] = true
			if s.discover(ctx, evt) {
				grew, discovered = true, true
			}
		}
	}

	out := make([]*types.ChainEvent, 0, len(logs))
	for i := range logs {
		log := &logs[i]
		if log.Removed || !s.watched[log.Address] || len(log.Topics) == 0 {
			continue
		}
		if _, ok := s.events[log.Topics[0]]; !ok {
			continue
		}
		if evt := decodeAt(i); evt != nil {
			out = append(out, evt)
		}
	}
	if discovered && s.store != nil {
		if err := s.store.PutWatched(s.watchedList()); err != nil {
			return nil, fmt.Errorf("persist watched contracts: %w", err)
		}
	}
	return out, nil
}

// announces reports whether log is a watched deployment log that may name new
// contracts.
func (s *LogSource) announces(log *gethtypes.Log) bool {
	if log.Removed || !s.watched[log.Address] || len(log.Topics) == 0 {
		return false
	}
	ev, ok := s.events[log.Topics[0]]
	if !ok {
		return false
	}
	switch types.EventKind(ev.Name) {
	case types.KindDeployedSecuredLine, types.KindDeployedSpigot, types.KindDeployedEscrow:
		return s.factories[log.Address] && !s.retired(log.Address, log.BlockNumber)
	case types.KindDeployLine:
		return s.modules != nil
	}
	return false
}

// decodeLog decodes a log of a known event, logging and returning nil when
// the log cannot be decoded.
func (s *LogSource) decodeLog(ctx context.Context, log *gethtypes.Log) *types.ChainEvent {
	ev := s.events[log.Topics[0]]
	evt, err := s.decode(ctx, ev, log)
	if err != nil {
		s.logger.Warn("evm: undecodable log skipped",
			slog.String("event", ev.Name),
			slog.String("contract", types.AddressKey(log.Address)),
			slog.String("tx", log.TxHash.Hex()),
			slog.Uint64("block", log.BlockNumber),
			slog.Uint64("logIndex", uint64(log.Index)),
			slog.Any("error", err))
		return nil
	}
	return evt
}

// Retire stops following deployments announced by factories after block.
func (s *LogSource) Retire(factories []common.Address, block uint64) {
	for _, f := range factories {
		s.retiredAt[f] = block
	}
}

func (s *LogSource) retired(factory common.Address, block uint64) bool {
	cutoff, ok := s.retiredAt[factory]
	return ok && block > cutoff
}

func (s *LogSource) decode(ctx context.Context, ev abi.Event, log *gethtypes.Log) (*types.ChainEvent, error) {
	params := make(map[string]any)
	if len(log.Data) > 0 {
		if err := ev.Inputs.NonIndexed().UnpackIntoMap(params, log.Data); err != nil {
			return nil, fmt.Errorf("unpack data: %w", err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(params, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	evt := &types.ChainEvent{
		Kind:        types.EventKind(ev.Name),
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Params:      params,
	}
	ts, err := s.blockTime(ctx, log.BlockNumber)
	if err != nil {
		return nil, err
	}
	evt.BlockTime = ts
	if needsTx[evt.Kind] {
		tx, from, err := s.client.Transaction(ctx, log.TxHash, log.BlockHash, log.TxIndex)
		if err != nil {
			return nil, err
		}
		evt.TxFrom = from
		evt.TxInput = tx.Data()
	}
	return evt, nil
}

func (s *LogSource) blockTime(ctx context.Context, block uint64) (uint64, error) {
	if ts, ok := s.times[block]; ok {
		return ts, nil
	}
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", block, err)
	}
	if len(s.times) > 4096 {
		s.times = make(map[uint64]uint64)
	}
	s.times[block] = header.Time
	return header.Time, nil
}

// discover follows contracts announced by evt and reports whether the watched
// set grew.
func (s *LogSource) discover(ctx context.Context, evt *types.ChainEvent) bool {
	var found []common.Address
	switch evt.Kind {
	case types.KindDeployedSecuredLine, types.KindDeployedSpigot, types.KindDeployedEscrow:
		if !s.factories[evt.Contract] {
			return false
		}
		for _, name := range []string{"deployedAt", "escrow", "spigot"} {
			if addr, err := evt.Address(name); err == nil {
				found = append(found, addr)
			}
		}
	case types.KindDeployLine:
		if s.modules == nil {
			return false
		}
		if addr, err := s.modules.Escrow(WithBlock(ctx, evt.BlockNumber), evt.Contract); err == nil {
			found = append(found, addr)
		}
		if addr, err := s.modules.Spigot(WithBlock(ctx, evt.BlockNumber), evt.Contract); err == nil {
			found = append(found, addr)
		}
	default:
		return false
	}
	grew := false
	for _, addr := range found {
		if (addr == common.Address{}) || s.watched[addr] {
			continue
		}
		s.watched[addr] = true
		grew = true
		s.logger.Info("evm: following new contract",
			slog.String("contract", types.AddressKey(addr)),
			slog.String("announcedBy", string(evt.Kind)),
			slog.Uint64("block", evt.BlockNumber))
	}
	return grew
}

func (s *LogSource) watchedList() []common.Address {
	out := make([]common.Address, 0, len(s.watched))
	for addr := range s.watched {
		if s.factories[addr] {
			continue
		}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
