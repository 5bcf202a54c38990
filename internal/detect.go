package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppDirName is the per-user application directory name on Windows and macOS
const AppDirName = "BobTheLawyer"

// DatabaseFileName is the name of the local database file
const DatabaseFileName = "database.db"

// ModelDirName is the directory holding the local model inside each search root
const ModelDirName = "tinyllama_model"

// StoragePaths holds the detected paths for local state
type StoragePaths struct {
	DataDir      string // per-user application data directory
	DatabasePath string // SQLite database file
	ConfigPath   string // optional YAML config file
}

// DetectStoragePaths detects the application data paths based on the operating system
func DetectStoragePaths() (StoragePaths, error) {
	dataDir, err := detectDataDir(runtime.GOOS)
	if err != nil {
		return StoragePaths{}, err
	}
	return storagePathsIn(dataDir), nil
}

func storagePathsIn(dataDir string) StoragePaths {
	return StoragePaths{
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, DatabaseFileName),
		ConfigPath:   filepath.Join(dataDir, "config.yaml"),
	}
}

func detectDataDir(goos string) (string, error) {
	if goos == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	switch goos {
	case "windows":
		return filepath.Join(home, "AppData", "Local", AppDirName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirName), nil
	default:
		return filepath.Join(home, ".bobthelawyer"), nil
	}
}

// GetStoragePaths returns paths, honouring a custom database location when given.
// A directory is treated as the data directory; anything else as the database file.
func GetStoragePaths(customPath string) (StoragePaths, error) {
	if customPath == "" {
		return DetectStoragePaths()
	}
	if IsPostgresURL(customPath) {
		paths, err := DetectStoragePaths()
		if err != nil {
			return StoragePaths{}, err
		}
		paths.DatabasePath = customPath
		return paths, nil
	}

	if info, err := os.Stat(customPath); err == nil && info.IsDir() {
		return storagePathsIn(customPath), nil
	}
	paths := storagePathsIn(filepath.Dir(customPath))
	paths.DatabasePath = customPath
	return paths, nil
}

// DatabaseExists checks if the SQLite database file exists
func (sp StoragePaths) DatabaseExists() bool {
	if IsPostgresURL(sp.DatabasePath) {
		return true
	}
	_, err := os.Stat(sp.DatabasePath)
	return err == nil
}

// EnsureDataDir creates the data directory
func (sp StoragePaths) EnsureDataDir() error {
	return os.MkdirAll(sp.DataDir, 0755)
}

// ModelSearchPaths lists the locations checked for a local model, in order
func ModelSearchPaths(modelDir string) []string {
	paths := []string{filepath.Join("Bob-the-lawyer-model", modelDir)}
	home, err := os.UserHomeDir()
	if err != nil {
		return paths
	}
	return append(paths,
		filepath.Join(home, "Bob-the-lawyer-model", modelDir),
		filepath.Join(home, "Documents", "Bob-the-lawyer-model", modelDir),
		filepath.Join(home, ".local", "share", "Bob-the-lawyer-model", modelDir),
	)
}

// FindModel returns the first existing path among candidates
func FindModel(candidates []string) (string, error) {
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	msg := "model not found in any of these locations:"
	for _, p := range candidates {
		msg += "\n- " + p
	}
	return "", fmt.Errorf("%s", msg)
}
