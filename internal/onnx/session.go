package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Graph names the engine requires in the manifest.
const (
	GraphBackboneStep = "backbone_step"
	GraphAudioEncoder = "audio_encoder"
	GraphAudioDecoder = "audio_decoder"
)

// NodeInfo describes one graph input or output as declared in the
// manifest. Shape entries are either numbers or symbolic dim names.
type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// Session is the resolved metadata for one ONNX graph.
type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// SessionManager resolves graph names to session metadata loaded from a
// JSON manifest that sits next to the exported .onnx files.
type SessionManager struct {
	sessions map[string]Session
}

type graphManifest struct {
	Graphs []manifestGraph `json:"graphs"`
}

type manifestGraph struct {
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

// NewSessionManager loads and validates the graph manifest. Relative graph
// filenames resolve against the manifest's directory.
func NewSessionManager(manifestPath string) (*SessionManager, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read graph manifest: %w", err)
	}

	var manifest graphManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode graph manifest: %w", err)
	}

	if len(manifest.Graphs) == 0 {
		return nil, errors.New("graph manifest has no graphs")
	}

	baseDir := filepath.Dir(manifestPath)
	sm := &SessionManager{sessions: make(map[string]Session, len(manifest.Graphs))}

	for _, g := range manifest.Graphs {
		if g.Name == "" {
			return nil, errors.New("manifest graph has empty name")
		}

		if g.Filename == "" {
			return nil, fmt.Errorf("manifest graph %q has empty filename", g.Name)
		}

		if _, exists := sm.sessions[g.Name]; exists {
			return nil, fmt.Errorf("duplicate graph name %q in manifest", g.Name)
		}

		sessionPath := g.Filename
		if !filepath.IsAbs(sessionPath) {
			sessionPath = filepath.Join(baseDir, g.Filename)
		}

		sessionPath = filepath.Clean(sessionPath)
		if _, err := os.Stat(sessionPath); err != nil {
			return nil, fmt.Errorf("graph file for %q: %w", g.Name, err)
		}

		sm.sessions[g.Name] = Session{
			Name:    g.Name,
			Path:    sessionPath,
			Inputs:  append([]NodeInfo(nil), g.Inputs...),
			Outputs: append([]NodeInfo(nil), g.Outputs...),
		}

		slog.Info("loaded graph session", "name", g.Name, "path", sessionPath)
	}

	return sm, nil
}

// Get returns the session metadata for a graph name.
func (sm *SessionManager) Get(name string) (Session, error) {
	s, ok := sm.sessions[name]
	if !ok {
		return Session{}, fmt.Errorf("graph %q not in manifest", name)
	}

	return s, nil
}
