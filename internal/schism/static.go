package schism

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// OutputsDir receives the solver output inside a cycle directory
const OutputsDir = "outputs"

type staticCopy struct {
	from string
	// fromCycle reads from the cycle directory instead of the config directory
	fromCycle bool
	to        string
}

var staticFiles = []staticCopy{
	{from: "hgrid.gr3.3.template", to: "hgrid.gr3"},
	{from: "hgrid.gr3", fromCycle: true, to: "hgrid.ll"},
	{from: "vgrid.in.2D.template", to: "vgrid.in"},
	{from: "manning.gr3.3.template", to: "manning.gr3"},
	{from: "windrot_geo2proj.gr3.template", to: "windrot_geo2proj.gr3"},
	{from: "station.in.3.template", to: "station.in"},
}

var waveFiles = []staticCopy{
	{from: "hgrid.gr3", fromCycle: true, to: "hgrid_WWM.gr3"},
	{from: "wwmbnd.gr3.inactive", to: "wwmbnd.gr3"},
}

// CopyStatic copies the grid and station files from configDir into the cycle
// directory and creates its outputs directory
func CopyStatic(configDir, dir string, wave bool) error {
	files := staticFiles
	if wave {
		files = append(append([]staticCopy(nil), staticFiles...), waveFiles...)
	}
	for _, c := range files {
		src := filepath.Join(configDir, c.from)
		if c.fromCycle {
			src = filepath.Join(dir, c.from)
		}
		if err := copyFile(src, filepath.Join(dir, c.to)); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, OutputsDir), 0755); err != nil {
		return fmt.Errorf("failed to create outputs directory: %v", err)
	}
	log.Printf("Copied %d static files to %s", len(files), dir)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %v", src, err)
	}
	return out.Close()
}

// TemplateScript copies a script into the cycle directory, replacing every
// "<cycle>" with the name of that directory
func TemplateScript(template, dir string) error {
	data, err := os.ReadFile(template)
	if err != nil {
		return fmt.Errorf("failed to read script template: %w", err)
	}
	content := strings.ReplaceAll(string(data), "<cycle>", filepath.Base(filepath.Clean(dir)))

	info, err := os.Stat(template)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %v", template, err)
	}
	out := filepath.Join(dir, filepath.Base(template))
	if err := os.WriteFile(out, []byte(content), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %v", out, err)
	}
	return nil
}

// TemplateScripts templates each named script found in scriptsDir. Missing
// templates are logged and skipped.
func TemplateScripts(scriptsDir string, names []string, dir string) error {
	for _, name := range names {
		err := TemplateScript(filepath.Join(scriptsDir, name), dir)
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("Script template %s not found, skipping", name)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
