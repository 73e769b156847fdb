package artifacts

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract as emitted by the rollup's hardhat plugin.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          *abi.ABI
	Bytecode     []byte
}

// ILoader resolves a contract name to its compiled artifact
type ILoader interface {
	LoadArtifact(name string) (*Artifact, error)
}

type artifactJSON struct {
	Format       string          `json:"_format"`
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// ParseArtifact decodes a single artifact file.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if raw.ContractName == "" {
		return nil, fmt.Errorf("artifact has no contract name")
	}

	parsedABI, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI of %s: %w", raw.ContractName, err)
	}

	bytecode, err := hexutil.Decode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bytecode of %s: %w", raw.ContractName, err)
	}

	return &Artifact{
		ContractName: raw.ContractName,
		SourceName:   raw.SourceName,
		ABI:          &parsedABI,
		Bytecode:     bytecode,
	}, nil
}

// FileLoader finds <name>.json anywhere below a hardhat artifacts directory.
// Parsed artifacts are cached.
type FileLoader struct {
	root  string
	cache map[string]*Artifact
	mu    sync.Mutex
}

var _ ILoader = (*FileLoader)(nil)

func NewFileLoader(root string) (*FileLoader, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("artifacts directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifacts path %s is not a directory", root)
	}
	return &FileLoader{
		root:  root,
		cache: make(map[string]*Artifact),
	}, nil
}

func (fl *FileLoader) LoadArtifact(name string) (*Artifact, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if a, ok := fl.cache[name]; ok {
		return a, nil
	}

	path, err := fl.find(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	a, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if a.ContractName != name {
		return nil, fmt.Errorf("artifact %s declares contract %s, expected %s", path, a.ContractName, name)
	}

	fl.cache[name] = a
	return a, nil
}

func (fl *FileLoader) find(name string) (string, error) {
	target := name + ".json"
	var matches []string
	err := filepath.WalkDir(fl.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == target {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", fl.root, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("artifact %s not found under %s", name, fl.root)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("artifact %s is ambiguous: %s", name, strings.Join(matches, ", "))
	}
}

// MemoryLoader serves artifacts registered in process.
type MemoryLoader struct {
	artifacts map[string]*Artifact
}

var _ ILoader = (*MemoryLoader)(nil)

func NewMemoryLoader(artifacts ...*Artifact) *MemoryLoader {
	m := &MemoryLoader{artifacts: make(map[string]*Artifact, len(artifacts))}
	for _, a := range artifacts {
		m.artifacts[a.ContractName] = a
	}
	return m
}

func (m *MemoryLoader) LoadArtifact(name string) (*Artifact, error) {
	a, ok := m.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", name)
	}
	return a, nil
}
