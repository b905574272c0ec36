// Copyright © 2018 The ELPS authors

package debuginfo

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"go.uber.org/multierr"
)

// Extensions of the two debug info containers a compiler may emit.
const (
	PackedExtension = ".nefdbgnfo"
	JSONExtension   = ".debug.json"
)

// ErrNotFound is returned by Locate when no debug info sits next to a
// program.
var ErrNotFound = errors.New("debug info not found")

type jsonMethod struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Range          string   `json:"range"`
	Params         []string `json:"params"`
	Variables      []string `json:"variables"`
	Return         string   `json:"return"`
	SequencePoints []string `json:"sequence-points"`
}

type jsonEvent struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

type jsonStruct struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

type jsonDebugInfo struct {
	Hash            string       `json:"hash"`
	DocumentRoot    string       `json:"document-root"`
	Documents       []string     `json:"documents"`
	Methods         []jsonMethod `json:"methods"`
	Events          []jsonEvent  `json:"events"`
	StaticVariables []string     `json:"static-variables"`
	Structs         []jsonStruct `json:"structs"`
}

// Locate returns the debug info file for a program: a packed .nefdbgnfo
// next to it, else a plain .debug.json.
func Locate(program string) (string, error) {
	base := strings.TrimSuffix(program, filepath.Ext(program))
	for _, p := range []string{base + PackedExtension, base + JSONExtension} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNotFound, program)
}

// Load reads debug info from a .nefdbgnfo archive or a JSON file.
func Load(path string) (*DebugInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), PackedExtension) {
		raw, err = unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	info, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if info.DocumentRoot == "" {
		info.resolveDocuments(filepath.Dir(path))
	}
	return info, nil
}

// unpack extracts the single .debug.json entry of a .nefdbgnfo archive.
func unpack(raw []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, JSONExtension) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close() //nolint:errcheck
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("archive has no %s entry", JSONExtension)
}

// Pack builds a .nefdbgnfo archive holding the JSON debug info under name.
func Pack(name string, jsonBytes []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name + JSONExtension)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(jsonBytes); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse decodes the JSON debug info format. Every malformed entry is
// reported, not just the first.
func Parse(raw []byte) (*DebugInfo, error) {
	var j jsonDebugInfo
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, err
	}
	info := &DebugInfo{
		DocumentRoot: j.DocumentRoot,
		Structs:      make(map[string]*Struct),
	}
	var errs error
	if j.Hash != "" {
		h, err := neovm.ParseHash160(j.Hash)
		errs = multierr.Append(errs, err)
		info.Hash = h
	}
	for _, doc := range j.Documents {
		if j.DocumentRoot != "" && !filepath.IsAbs(doc) {
			doc = filepath.Join(j.DocumentRoot, doc)
		}
		info.Documents = append(info.Documents, doc)
	}
	for _, jm := range j.Methods {
		m, err := parseMethod(jm)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("method %q: %w", jm.Name, err))
			continue
		}
		info.Methods = append(info.Methods, m)
	}
	for _, je := range j.Events {
		ns, name := splitName(je.Name)
		params, err := parseSlots(je.Params)
		errs = multierr.Append(errs, err)
		info.Events = append(info.Events, Event{ID: je.ID, Namespace: ns, Name: name, Parameters: params})
	}
	statics, err := parseSlots(j.StaticVariables)
	errs = multierr.Append(errs, err)
	info.StaticVariables = statics
	for _, js := range j.Structs {
		s := &Struct{Name: js.Name}
		for _, f := range js.Fields {
			name, typ, _ := strings.Cut(f, ",")
			s.Fields = append(s.Fields, StructField{Name: name, Type: typ})
		}
		info.Structs[s.Name] = s
	}
	if errs != nil {
		return nil, errs
	}
	return info, nil
}

func splitName(full string) (namespace, name string) {
	if i := strings.LastIndex(full, ","); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "", full
}

func parseMethod(jm jsonMethod) (*Method, error) {
	ns, name := splitName(jm.Name)
	m := &Method{ID: jm.ID, Namespace: ns, Name: name, ReturnType: jm.Return}
	var errs error
	start, end, ok := strings.Cut(jm.Range, "-")
	if !ok {
		errs = multierr.Append(errs, fmt.Errorf("invalid range %q", jm.Range))
	} else {
		var err1, err2 error
		m.Range.Start, err1 = strconv.Atoi(start)
		m.Range.End, err2 = strconv.Atoi(end)
		errs = multierr.Combine(errs, err1, err2)
	}
	var err error
	m.Parameters, err = parseSlots(jm.Params)
	errs = multierr.Append(errs, err)
	m.Variables, err = parseSlots(jm.Variables)
	errs = multierr.Append(errs, err)
	for _, s := range jm.SequencePoints {
		sp, err := ParseSequencePoint(s)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		m.SequencePoints = append(m.SequencePoints, sp)
	}
	sort.SliceStable(m.SequencePoints, func(i, j int) bool {
		return m.SequencePoints[i].Address < m.SequencePoints[j].Address
	})
	return m, errs
}

// parseSlots decodes "name,type" or "name,type,index" entries. Entries
// without an explicit index take their position.
func parseSlots(entries []string) ([]SlotVariable, error) {
	var (
		out  []SlotVariable
		errs error
	)
	for i, e := range entries {
		parts := strings.Split(e, ",")
		if len(parts) < 2 || len(parts) > 3 {
			errs = multierr.Append(errs, fmt.Errorf("invalid slot %q", e))
			continue
		}
		v := SlotVariable{Name: parts[0], Type: parts[1], Index: i}
		if len(parts) == 3 {
			n, err := strconv.Atoi(parts[2])
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("invalid slot index in %q", e))
				continue
			}
			v.Index = n
		}
		out = append(out, v)
	}
	return out, errs
}

var sequencePointRegexp = regexp.MustCompile(`^(\d+)\[(\d+)\](\d+):(\d+)-(\d+):(\d+)$`)

// ParseSequencePoint decodes "address[document]line:col-line:col".
func ParseSequencePoint(s string) (SequencePoint, error) {
	m := sequencePointRegexp.FindStringSubmatch(s)
	if m == nil {
		return SequencePoint{}, fmt.Errorf("invalid sequence point %q", s)
	}
	n := make([]int, 6)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	return SequencePoint{
		Address:  n[0],
		Document: n[1],
		Start:    Position{Line: n[2], Column: n[3]},
		End:      Position{Line: n[4], Column: n[5]},
	}, nil
}
