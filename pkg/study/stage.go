package study

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// ErrMissingAsset is returned when a referenced asset file does not exist.
var ErrMissingAsset = errors.New("asset not found")

// Asset is one file copied by Stage.
type Asset struct {
	Ref  string `json:"ref"`
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

// Stager copies study assets into an external application checkout.
type Stager struct {
	// Root is the application checkout; it must exist.
	Root string
	// Base resolves relative asset paths. Empty means the working directory.
	Base string
}

// Stage copies every component path and the uiConfig help text and logo into the
// application tree, and returns the study with those paths rewritten to AssetPrefix.
// React components go under src/public, everything else under public.
func (s Stager) Stage(raw json.RawMessage) (json.RawMessage, []Asset, error) {
	info, err := os.Stat(s.Root)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%q does not exist", s.Root)
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("invalid study json: %w", err)
	}

	var assets []Asset

	if components, ok := doc["components"].(map[string]any); ok {
		names := make([]string, 0, len(components))
		for name := range components {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			comp, ok := components[name].(map[string]any)
			if !ok {
				continue
			}
			src, _ := comp["path"].(string)
			if src == "" {
				continue
			}
			dir := "public"
			if comp["type"] == "react-component" {
				dir = filepath.Join("src", "public")
			}
			comp["path"] = s.plan(&assets, "components."+name+".path", src, dir)
		}
	}

	if ui, ok := doc["uiConfig"].(map[string]any); ok {
		for _, key := range []string{"helpTextPath", "logoPath"} {
			src, _ := ui[key].(string)
			if src == "" {
				continue
			}
			ui[key] = s.plan(&assets, "uiConfig."+key, src, "public")
		}
	}

	for _, a := range assets {
		if err := copyFile(a.Src, a.Dest); err != nil {
			return nil, nil, err
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode study: %w", err)
	}
	return out, assets, nil
}

func (s Stager) plan(assets *[]Asset, ref, src, dir string) string {
	name := path.Base(filepath.ToSlash(src))
	resolved := src
	if !filepath.IsAbs(resolved) && s.Base != "" {
		resolved = filepath.Join(s.Base, resolved)
	}
	*assets = append(*assets, Asset{
		Ref:  ref,
		Src:  resolved,
		Dest: filepath.Join(s.Root, dir, filepath.FromSlash(AssetPrefix), name),
	})
	return AssetPrefix + name
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingAsset, src)
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
