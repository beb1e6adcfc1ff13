package core

import (
	"bytes"
	"sync"

	"golang.org/x/exp/slices"

	"gopcnt/debug"
	"gopcnt/tinycompress"
)

// Constant is a firmware value exposed to the host in the "config" section.
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration maps symbolic names (pin names) to their index.
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary builds the Klipper data dictionary the host retrieves with
// identify.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte // compressed, set by BuildDictionary
}

var globalDictionary = NewDictionary(globalRegistry)

func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       "gopcnt-0.1.0",
		buildVersions: "go-tinygo",
	}
}

// RegisterConstant adds a constant to the global dictionary.
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the global dictionary.
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.cachedDict = nil
}

func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Keep a private copy; callers often pass a reused slice.
	vals := make([]string, len(values))
	copy(vals, values)
	d.enumerations[name] = &Enumeration{Name: name, Values: vals}
	d.cachedDict = nil
}

func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cachedDict = nil
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cachedDict = nil
}

// BuildDictionary compresses and caches the dictionary. Call it once all
// commands and constants are registered.
func (d *Dictionary) BuildDictionary() {
	// Read the registry before taking our own lock; the registry lock is
	// never held while acquiring the dictionary lock elsewhere.
	commands, responses := d.commandReg.GetCommandsAndResponses()
	debug.Println("[BuildDict] " + debug.Itoa(len(commands)) + " commands, " +
		debug.Itoa(len(responses)) + " responses")

	d.mu.Lock()
	defer d.mu.Unlock()

	jsonData := d.buildJSONLocked(commands, responses)

	var buf bytes.Buffer
	w := tinycompress.NewWriterSize(&buf, len(jsonData))
	if _, err := w.Write(jsonData); err != nil {
		debug.Println("[BuildDict] compression failed: " + err.Error())
		d.cachedDict = jsonData
		return
	}
	if err := w.Close(); err != nil {
		debug.Println("[BuildDict] compression failed: " + err.Error())
		d.cachedDict = jsonData
		return
	}

	d.cachedDict = buf.Bytes()
	debug.Println("[BuildDict] " + debug.Itoa(len(jsonData)) + " -> " +
		debug.Itoa(len(d.cachedDict)) + " bytes")
}

// Generate returns the cached compressed dictionary, or plain JSON when
// BuildDictionary has not run.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	commands, responses := d.commandReg.GetCommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSONLocked(commands, responses)
}

// buildJSONLocked renders the dictionary by hand; encoding/json is too
// large for the firmware image. Caller holds mu.
func (d *Dictionary) buildJSONLocked(commands, responses map[string]int) []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":"`...)
	out = append(out, d.version...)
	out = append(out, `","build_versions":"`...)
	out = append(out, d.buildVersions...)
	out = append(out, `","config":{`...)

	names := sortedKeys(d.constants)
	for i, name := range names {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, valueToString(d.constants[name].Value))
	}

	out = append(out, `},"commands":`...)
	out = appendIDMap(out, commands)
	out = append(out, `,"responses":`...)
	out = appendIDMap(out, responses)

	if len(d.enumerations) > 0 {
		out = append(out, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enumerations) {
			if i > 0 {
				out = append(out, ',')
			}
			out = appendQuoted(out, name)
			out = append(out, ":{"...)
			first := true
			for idx, v := range d.enumerations[name].Values {
				if v == "" {
					continue
				}
				if !first {
					out = append(out, ',')
				}
				out = appendQuoted(out, v)
				out = append(out, ':')
				out = append(out, debug.Itoa(idx)...)
				first = false
			}
			out = append(out, '}')
		}
		out = append(out, '}')
	}

	return append(out, '}')
}

// appendIDMap writes {"signature":id,...} ordered by id.
func appendIDMap(out []byte, m map[string]int) []byte {
	sigs := make([]string, 0, len(m))
	for sig := range m {
		sigs = append(sigs, sig)
	}
	slices.SortFunc(sigs, func(a, b string) int { return m[a] - m[b] })

	out = append(out, '{')
	for i, sig := range sigs {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, sig)
		out = append(out, ':')
		out = append(out, debug.Itoa(m[sig])...)
	}
	return append(out, '}')
}

func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return append(out, '"')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return debug.Itoa(val)
	case int32:
		return debug.Itoa(int(val))
	case int64:
		return debug.Itoa(int(val))
	case uint:
		return debug.Utoa(uint32(val))
	case uint8:
		return debug.Utoa(uint32(val))
	case uint16:
		return debug.Utoa(uint32(val))
	case uint32:
		return debug.Utoa(val)
	default:
		return ""
	}
}

// GetChunk returns up to count bytes of the dictionary starting at offset.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
