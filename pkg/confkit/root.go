package confkit

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
)

const maxWalkDepth = 8

// walkUp calls visit on start and its parents until visit returns true.
func walkUp(start string, visit func(dir string) bool) (string, bool) {
	dir := start
	for i := 0; i < maxWalkDepth; i++ {
		if visit(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func isRoot(dir string) bool {
	for _, marker := range []string{"go.mod", ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// searchStarts lists the working directory and then this source file's
// directory; the latter only helps when running from a checkout.
func searchStarts() []string {
	var starts []string
	if wd, err := os.Getwd(); err == nil {
		starts = append(starts, wd)
	}
	if _, file, _, ok := runtime.Caller(0); ok {
		starts = append(starts, filepath.Dir(file))
	}
	return starts
}

// ProjectRoot finds the nearest directory holding go.mod or .git. It falls
// back to the working directory.
func ProjectRoot() string {
	for _, start := range searchStarts() {
		if root, ok := walkUp(start, isRoot); ok {
			return root
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// MustProjectPath joins the project root with rel.
func MustProjectPath(rel string) string {
	return filepath.Join(ProjectRoot(), filepath.FromSlash(rel))
}

var dotenvOnce sync.Once

// LoadDotenvOnce loads .env files once per process. ENV_FILE names an explicit
// file; otherwise every .env between the working directory and the project
// root is loaded, nearest first. Set variables win unless DOTENV_OVERLOAD=1.
// NO_DOTENV=1 disables loading.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = load(envFile)
		return
	}
	wd, err := os.Getwd()
	if err != nil {
		_ = load()
		return
	}
	walkUp(wd, func(dir string) bool {
		if path := filepath.Join(dir, ".env"); fileExists(path) {
			_ = load(path)
		}
		return isRoot(dir)
	})
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
