package policy

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
)

type RuleSource interface {
	Rules() (Rules, error)
}

var (
	_ RuleSource = DefaultSource{}
	_ RuleSource = (*FileSource)(nil)
)

// NewSource returns the rule file source when one is configured, the built-in table otherwise.
func NewSource(conf *core.Config) RuleSource {
	if conf.Policy.File != "" {
		return &FileSource{Path: conf.Policy.File}
	}
	return DefaultSource{}
}

// DefaultSource serves the built-in rule table.
type DefaultSource struct{}

func (DefaultSource) Rules() (Rules, error) {
	return DefaultRules(), nil
}

// FileSource reads rules from a YAML file shaped like
//
//	teacher:
//	  note:
//	    create: allow
type FileSource struct {
	Path string
}

func (src *FileSource) Rules() (Rules, error) {
	data, err := ioutil.ReadFile(src.Path)
	if err != nil {
		return nil, errors.Wrap(err, "reading policy file")
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules and rejects unknown roles, modules and actions.
func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.UnmarshalStrict(data, &rules); err != nil {
		return nil, errors.Wrap(err, "decoding policy rules")
	}
	for r, modules := range rules {
		if !r.IsValid() {
			return nil, errors.Errorf("policy rules: unknown role %q", r)
		}
		for m, actions := range modules {
			if !knownModule(m) {
				return nil, errors.Errorf("policy rules: unknown module %q", m)
			}
			for a := range actions {
				if !knownAction(a) {
					return nil, errors.Errorf("policy rules: unknown action %q", a)
				}
			}
		}
	}
	return rules, nil
}

// DefaultRules returns a fresh copy of the built-in rule table.
func DefaultRules() Rules {
	all := func(e Effect) map[Action]Effect {
		return map[Action]Effect{ActionCreate: e, ActionRead: e, ActionUpdate: e, ActionDelete: e, ActionList: e}
	}
	readOnly := func() map[Action]Effect {
		return map[Action]Effect{ActionRead: Allow, ActionList: Allow}
	}
	noDelete := func() map[Action]Effect {
		return map[Action]Effect{ActionCreate: Allow, ActionRead: Allow, ActionUpdate: Allow, ActionList: Allow}
	}
	ownCredential := func() map[Action]Effect {
		return map[Action]Effect{ActionRead: Self, ActionUpdate: Self, ActionDelete: Self}
	}

	rules := Rules{
		role.Master:        {},
		role.Administrator: {},
		role.Teacher: {
			ModuleCredential: ownCredential(),
			ModuleTenant:     {ActionRead: Allow},
			ModuleEvaluation: noDelete(),
			ModuleNote:       noDelete(),
			ModuleAttendance: noDelete(),
			ModuleEvent:      readOnly(),
			ModuleLesson:     noDelete(),
		},
		role.Student: {
			ModuleCredential: ownCredential(),
			ModuleTenant:     {ActionRead: Allow},
			ModuleEvaluation: readOnly(),
			ModuleNote:       readOnly(),
			ModuleAttendance: readOnly(),
			ModuleEvent:      readOnly(),
			ModuleLesson:     readOnly(),
		},
		role.Worker: {
			ModuleCredential: ownCredential(),
			ModuleTenant:     {ActionRead: Allow},
			ModuleAttendance: readOnly(),
			ModuleEvent:      noDelete(),
		},
	}
	for _, m := range Modules {
		rules[role.Master][m] = all(Allow)
		rules[role.Administrator][m] = all(Allow)
	}
	rules[role.Master][ModuleCredential] = map[Action]Effect{
		ActionCreate: Allow, ActionRead: Owner, ActionUpdate: Owner, ActionDelete: Owner, ActionList: Allow,
	}
	rules[role.Administrator][ModuleCredential] = map[Action]Effect{
		ActionCreate: Allow, ActionRead: Allow, ActionUpdate: Self, ActionDelete: Self, ActionList: Allow,
	}
	rules[role.Administrator][ModuleTenant][ActionDelete] = Deny
	return rules
}

func knownModule(m Module) bool {
	for _, known := range Modules {
		if m == known {
			return true
		}
	}
	return false
}

func knownAction(a Action) bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}
