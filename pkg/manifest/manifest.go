package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// FileName is the manifest file Find looks for.
const FileName = "multi.toml"

// Manifest describes a type graph, the generic functions over it, and a
// set of calls to make against them.
type Manifest struct {
	Types      []TypeDecl      `toml:"type"`
	Protos     []CandidateDecl `toml:"proto"`
	Candidates []CandidateDecl `toml:"candidate"`
	CallDecls  []CallDecl      `toml:"call"`

	// Path is the file the manifest was loaded from, if any.
	Path string `toml:"-"`
}

// TypeDecl declares a nominal type. Parents must be declared earlier in
// the file; none means Any.
type TypeDecl struct {
	Name string   `toml:"name"`
	Is   []string `toml:"is"`
}

// ParamDecl is one parameter of a candidate or proto.
type ParamDecl struct {
	Name    string `toml:"name"`
	Type    string `toml:"type"`
	Capture string `toml:"capture"`
	// Where names a stock constraint: defined, undefined, equals, one-of,
	// not-equals or same-as. The last four read WhereValue.
	Where      string `toml:"where"`
	WhereValue any    `toml:"where_value"`
	Rw         bool   `toml:"rw"`
	Slurpy     bool   `toml:"slurpy"`
	Named      bool   `toml:"named"`
	Optional   bool   `toml:"optional"`
	Required   bool   `toml:"required"`
}

// ArgDecl is an argument of a call. A missing value is undefined.
type ArgDecl struct {
	Type  string `toml:"type"`
	Value any    `toml:"value"`
	Rw    bool   `toml:"rw"`
}

// CandidateDecl is a candidate whose body returns a fixed value, or hands
// off to the next candidate.
type CandidateDecl struct {
	Function string      `toml:"function"`
	Label    string      `toml:"label"`
	Params   []ParamDecl `toml:"params"`
	Returns  any         `toml:"returns"`
	// Then is one of callsame, callwith, nextsame or nextwith.
	Then string    `toml:"then"`
	With []ArgDecl `toml:"with"`
}

// CallDecl is a call to run against the built environment.
type CallDecl struct {
	Function    string             `toml:"function"`
	Policy      string             `toml:"policy"`
	Args        []ArgDecl          `toml:"args"`
	Named       map[string]ArgDecl `toml:"named"`
	Expect      any                `toml:"expect"`
	ExpectError string             `toml:"expect_error"`
}

// Decode parses a manifest. Unknown keys are an error.
func Decode(src string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(src, &m)
	if err != nil {
		return nil, err
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile loads a manifest from the given path.
func LoadFile(path string) (*Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	m.Path = path
	return &m, nil
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return errors.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

// Find searches for a multi.toml file starting from dir and walking up to
// parent directories, stopping at a .git boundary. Returns ("", nil, nil)
// if not found.
func Find(dir string) (string, *Manifest, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			m, err := LoadFile(path)
			if err != nil {
				return "", nil, err
			}
			return path, m, nil
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return "", nil, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}
