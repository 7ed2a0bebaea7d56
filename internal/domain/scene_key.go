package domain

import "strings"

const (
	// ScanScenePrefix is prepended by the platform when a follower subscribes through a QR code.
	ScanScenePrefix = "qrscene_"
	// BindingPrefix marks scene strings that carry a binding code.
	BindingPrefix = "bind_"
)

// SceneKeyKind tags how an event key was recognized.
type SceneKeyKind int

const (
	SceneKeyUnrecognized SceneKeyKind = iota
	SceneKeyScanSceneBinding
	SceneKeyDirectBinding
)

func (k SceneKeyKind) String() string {
	switch k {
	case SceneKeyScanSceneBinding:
		return "scan_scene_binding"
	case SceneKeyDirectBinding:
		return "direct_binding"
	default:
		return "unrecognized"
	}
}

// SceneKey is a classified event key.
type SceneKey struct {
	Kind SceneKeyKind
	Code string
}

// ClassifyEventKey recognizes qrscene_bind_<code> and bind_<code>. A binding
// prefix with nothing after it is unrecognized.
func ClassifyEventKey(raw string) SceneKey {
	kind := SceneKeyDirectBinding
	key := raw
	if rest, ok := strings.CutPrefix(key, ScanScenePrefix); ok {
		kind = SceneKeyScanSceneBinding
		key = rest
	}
	code, ok := strings.CutPrefix(key, BindingPrefix)
	if !ok || code == "" {
		return SceneKey{Kind: SceneKeyUnrecognized}
	}
	return SceneKey{Kind: kind, Code: code}
}

// BindingCode returns the embedded code when the key is a binding key.
func (k SceneKey) BindingCode() (string, bool) {
	if k.Kind == SceneKeyUnrecognized {
		return "", false
	}
	return k.Code, true
}

// BindingSceneStr builds the QR scene string for a binding code.
func BindingSceneStr(code string) string {
	return BindingPrefix + code
}
