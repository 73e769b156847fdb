package tests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Environment variables read by the integration tests
const (
	EnvTestRpcUrl    = "ZKSYNC_TEST_RPC_URL"
	EnvStartTestNode = "ZKSYNC_START_TEST_NODE"

	// EnvTestArtifactsDir points at artifacts compiled for the rollup; the
	// fixtures under pkg/artifacts/testdata are not deployable on a real node
	EnvTestArtifactsDir = "ZKSYNC_TEST_ARTIFACTS_DIR"
)

func GetProjectRootPath() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	startingPath := ""
	iterations := 0
	for {
		if iterations > 10 {
			panic("Could not find project root path")
		}
		iterations++
		p, err := filepath.Abs(fmt.Sprintf("%s/%s", wd, startingPath))
		if err != nil {
			panic(err)
		}

		if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
			return p
		}
		match := regexp.MustCompile(`\/zksync-multisig-go([A-Za-z0-9_-]+)?\/?$`)
		if match.MatchString(p) {
			return p
		}
		startingPath = startingPath + "/.."
	}
}

// ArtifactsPath is the directory of the compiled contract fixtures
func ArtifactsPath(projectRoot string) string {
	return filepath.Join(projectRoot, "pkg", "artifacts", "testdata")
}

// ChainConfig lists the pre-funded accounts of the local rollup node
type ChainConfig struct {
	ChainId                    uint64 `json:"chainId"`
	RpcUrl                     string `json:"rpcUrl"`
	DeployerAccountAddress     string `json:"deployerAccountAddress"`
	DeployerAccountPrivateKey  string `json:"deployerAccountPk"`
	SecondaryAccountAddress    string `json:"secondaryAccountAddress"`
	SecondaryAccountPrivateKey string `json:"secondaryAccountPk"`
}

func ReadChainConfig(projectRoot string) (*ChainConfig, error) {
	filePath := fmt.Sprintf("%s/internal/testData/chain-config.json", projectRoot)

	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cf *ChainConfig
	if err := json.Unmarshal(file, &cf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file: %w", err)
	}
	return cf, nil
}
