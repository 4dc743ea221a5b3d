package groveconfig

import (
	"os"
	"path/filepath"
)

const configFileName = ".prototools"

// LoadLayers walks upward from cwd to endDir (inclusive), loading
// .prototools (and .prototools.<mode>, if mode is non-empty) at each
// directory, then appends the global file at <protoHome>/.prototools.
// Layers are returned deepest-first (CWD first, root last, global last of
// all), per spec.md §3's "Config-file layer" definition. A file that does
// not exist yields a Layer with Exists=false and a nil Content; a file
// that exists but fails to parse is a hard error.
func LoadLayers(cwd, endDir, protoHome, mode string) ([]Layer, error) {
	var layers []Layer

	dir := filepath.Clean(cwd)
	end := filepath.Clean(endDir)
	for {
		layer, err := loadLayer(dir, configFileName, LocationLocal)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)

		if mode != "" {
			modeLayer, err := loadLayer(dir, configFileName+"."+mode, LocationLocal)
			if err != nil {
				return nil, err
			}
			layers = append(layers, modeLayer)
		}

		if dir == end {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	global, err := loadLayer(filepath.Clean(protoHome), configFileName, LocationGlobal)
	if err != nil {
		return nil, err
	}
	layers = append(layers, global)

	return layers, nil
}

func loadLayer(dir, name string, loc Location) (Layer, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return Layer{Dir: dir, Path: path, Exists: false, Location: loc}, nil
	}
	content, err := LoadFile(path)
	if err != nil {
		return Layer{}, err
	}
	return Layer{Dir: dir, Path: path, Exists: true, Location: loc, Content: content}, nil
}
