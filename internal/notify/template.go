package notify

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"condor/internal/logger"
	"condor/internal/model"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Template 描述单个事件类别的通知模板。
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type templateFile struct {
	Templates map[string]Template `yaml:"templates"`
}

// templatesSchema validates the template file shape before it replaces the
// active set: a malformed file keeps the previous templates.
const templatesSchema = `{
	"type": "object",
	"properties": {
		"templates": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"subject": {"type": "string"},
					"body": {"type": "string"}
				},
				"required": ["body"]
			}
		}
	}
}`

// Registry holds the per-category notification templates, loaded from a YAML
// file with built-in fallbacks. Reload is explicit; an fsnotify watcher only
// calls Reload when the file changes on disk.
type Registry struct {
	path string

	mu        sync.RWMutex
	templates map[model.EventCategory]Template

	schema  *jsonschema.Schema
	watcher *fsnotify.Watcher
}

func defaultTemplates() map[model.EventCategory]Template {
	return map[model.EventCategory]Template{
		model.CategoryPriceAlert: {
			Subject: "{priority_emoji} 价格告警 {symbol}",
			Body:    "条件 {condition_name} 已触发：{symbol} 当前值 {result_value}（{trigger_time}）",
		},
		model.CategoryVolumeAlert: {
			Subject: "{priority_emoji} 成交量告警 {symbol}",
			Body:    "条件 {condition_name} 已触发：{symbol} 成交量 {result_value}（{trigger_time}）",
		},
		model.CategoryTechnicalAlert: {
			Subject: "{priority_emoji} 技术指标告警 {symbol}",
			Body:    "条件 {condition_name} 已触发：{result_details}（{trigger_time}）",
		},
		model.CategoryEmergencyAlert: {
			Subject: "{priority_emoji} 执行失败 {symbol}",
			Body:    "订单执行失败：{result_details}（{trigger_time}）",
		},
		model.CategoryCustom: {
			Subject: "{priority_emoji} 提醒 {symbol}",
			Body:    "{condition_name}: {result_details}（{trigger_time}）",
		},
	}
}

func NewRegistry(path string) (*Registry, error) {
	schema, err := jsonschema.CompileString("templates.json", templatesSchema)
	if err != nil {
		return nil, fmt.Errorf("compile template schema: %w", err)
	}
	r := &Registry{
		path:      strings.TrimSpace(path),
		templates: defaultTemplates(),
		schema:    schema,
	}
	if r.path != "" {
		if err := r.Reload(); err != nil {
			// Missing or broken file is not fatal: defaults stay active.
			logger.Warnf("notify: template file not loaded path=%s err=%v", r.path, err)
		}
	}
	return r, nil
}

// Reload re-reads the template file, replacing the active set only when the
// file validates. Categories absent from the file keep their defaults.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("parse %s: %w", r.path, err)
	}
	if err := r.schema.Validate(normalizeYAML(generic)); err != nil {
		return fmt.Errorf("validate %s: %w", r.path, err)
	}

	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("decode %s: %w", r.path, err)
	}

	next := defaultTemplates()
	for name, tpl := range file.Templates {
		next[model.EventCategory(name)] = tpl
	}
	r.mu.Lock()
	r.templates = next
	r.mu.Unlock()
	logger.Infof("notify: templates reloaded path=%s count=%d", r.path, len(file.Templates))
	return nil
}

// Watch starts an fsnotify watcher that reloads on file changes. Stop via
// Close.
func (r *Registry) Watch() error {
	if r.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return err
	}
	r.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := r.Reload(); err != nil {
						logger.Warnf("notify: template reload failed err=%v", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("notify: template watcher err=%v", err)
			}
		}
	}()
	return nil
}

func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Resolve returns the template for the category, falling back to custom.
func (r *Registry) Resolve(category model.EventCategory) Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tpl, ok := r.templates[category]; ok {
		return tpl
	}
	return r.templates[model.CategoryCustom]
}

// normalizeYAML converts yaml.v3's map[string]any trees into the json-like
// shapes the jsonschema validator expects.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
