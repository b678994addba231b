package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lineledger/config"
	"lineledger/core/state"
	"lineledger/core/types"
	"lineledger/integrations/exports"
	"lineledger/native/positionid"
	"lineledger/storage"
)

const (
	deriveCommand = "derive-id"
	exportCommand = "export"
	showCommand   = "show"
	defaultConfig = "./lineledger.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case deriveCommand:
		err = runDerive(os.Args[2:], os.Stdout)
	case exportCommand:
		err = runExport(os.Args[2:], os.Stdout)
	case showCommand:
		err = runShow(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: ledgerctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s  compute the position id of a (line, lender, token) triple\n", deriveCommand)
	fmt.Fprintf(os.Stderr, "  %s     write audit records as csv or jsonl\n", exportCommand)
	fmt.Fprintf(os.Stderr, "  %s       print one stored entity as json\n", showCommand)
}

func runDerive(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(deriveCommand, flag.ContinueOnError)
	line := fs.String("line", "", "Line contract address")
	lender := fs.String("lender", "", "Lender address")
	token := fs.String("token", "", "Credit token address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for name, raw := range map[string]string{"line": *line, "lender": *lender, "token": *token} {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("--%s must be an address", name)
		}
	}
	id, err := positionid.Compute(common.HexToAddress(*line), common.HexToAddress(*lender), common.HexToAddress(*token))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, types.HashKey(id))
	return err
}

func openState(configPath, dataDir string) (*state.Manager, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.Storage.Path = dataDir
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return state.NewManager(db), db.Close, nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the indexer config file")
	dataDir := fs.String("data", "", "Override the store path")
	prefix := fs.String("type", "", "Only export records whose type starts with this prefix")
	line := fs.String("line", "", "Only export records of this line")
	format := fs.String("format", "csv", "Output format: csv or jsonl")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mgr, closeFn, err := openState(*configPath, *dataDir)
	if err != nil {
		return err
	}
	defer closeFn()
	return exportRecords(mgr, out, *prefix, *line, *format)
}

func exportRecords(mgr *state.Manager, out io.Writer, prefix, line, format string) error {
	lineKey := ""
	if strings.TrimSpace(line) != "" {
		if !common.IsHexAddress(line) {
			return fmt.Errorf("--line must be an address")
		}
		lineKey = types.AddressKey(common.HexToAddress(line))
	}
	var records []*types.Event
	if err := mgr.Events(prefix, func(evt *types.Event) bool {
		if lineKey == "" || evt.Attr("line") == lineKey {
			records = append(records, evt)
		}
		return true
	}); err != nil {
		return err
	}

	var (
		data     []byte
		checksum string
		err      error
	)
	switch strings.ToLower(format) {
	case "csv":
		data, checksum, err = exports.RecordsCSV(records)
	case "jsonl":
		data, checksum, err = exports.RecordsJSONL(records)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d records, sha256 %s\n", len(records), checksum)
	return nil
}

func runShow(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(showCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the indexer config file")
	dataDir := fs.String("data", "", "Override the store path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: ledgerctl show [flags] <line|position|proposal|token|escrow|spigot> <id>")
	}
	mgr, closeFn, err := openState(*configPath, *dataDir)
	if err != nil {
		return err
	}
	defer closeFn()
	return showEntity(mgr, out, fs.Arg(0), fs.Arg(1))
}

func showEntity(mgr *state.Manager, out io.Writer, kind, id string) error {
	var (
		entity interface{}
		found  bool
		err    error
	)
	switch kind {
	case "line":
		entity, found, err = mgr.Line(common.HexToAddress(id))
	case "position":
		entity, found, err = mgr.Position(common.HexToHash(id))
	case "proposal":
		entity, found, err = mgr.Proposal(id)
	case "token":
		entity, found, err = mgr.Token(common.HexToAddress(id))
	case "escrow":
		entity, found, err = mgr.Escrow(common.HexToAddress(id))
	case "spigot":
		entity, found, err = mgr.SpigotController(common.HexToAddress(id))
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entity)
}
