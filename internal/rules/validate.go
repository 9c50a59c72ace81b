package rules

import (
	"errors"
	"fmt"
	"slices"

	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Validate checks the rule set and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be at least 1"))
	}
	if c.BaseBackoffMS < 0 || c.MaxBackoffMS < 0 || c.HostSpacingMS < 0 || c.JitterMS < 0 || c.WaitDelayMS < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.MaxBackoffMS > 0 && c.BaseBackoffMS > c.MaxBackoffMS {
		errs = append(errs, errors.New("base_backoff_ms must not exceed max_backoff_ms"))
	}
	errs = append(errs, c.validateWait()...)
	errs = append(errs, c.validateLoadMore()...)
	errs = append(errs, c.validateItems()...)
	errs = append(errs, c.validateTransforms()...)

	declared := c.FieldNames()
	for _, key := range c.KeyFields {
		if !slices.Contains(declared, key) {
			errs = append(errs, fmt.Errorf("key field %q is not a declared field", key))
		}
	}
	for _, col := range c.Columns {
		if !slices.Contains(declared, col) {
			errs = append(errs, fmt.Errorf("column %q is not a declared field", col))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateWait() []error {
	switch c.WaitCondition {
	case "", scraper.WaitNone, scraper.WaitNetworkIdle:
	case scraper.WaitElement:
		if c.WaitSelector == "" {
			return []error{errors.New("wait_condition element requires wait_selector")}
		}
		if err := compile(c.WaitSelector); err != nil {
			return []error{fmt.Errorf("wait_selector: %w", err)}
		}
	case scraper.WaitDelay:
		if c.WaitDelayMS <= 0 {
			return []error{errors.New("wait_condition delay requires wait_delay_ms > 0")}
		}
	default:
		return []error{fmt.Errorf("unknown wait_condition %q", c.WaitCondition)}
	}
	return nil
}

func (c *Config) validateLoadMore() []error {
	lm := c.LoadMore
	if lm == nil {
		return nil
	}
	var errs []error
	if err := compile(lm.Selector); err != nil {
		errs = append(errs, fmt.Errorf("load_more.selector: %w", err))
	}
	if lm.ItemSelector != "" {
		if err := compile(lm.ItemSelector); err != nil {
			errs = append(errs, fmt.Errorf("load_more.item_selector: %w", err))
		}
	}
	if lm.MaxClicks < 0 || lm.MaxItems < 0 || lm.SettleMS < 0 {
		errs = append(errs, errors.New("load_more limits must not be negative"))
	}
	return errs
}

func (c *Config) validateItems() []error {
	if len(c.Items) == 0 {
		return []error{errors.New("at least one item rule is required")}
	}
	var errs []error
	names := make(map[string]struct{})
	for i, item := range c.Items {
		if item.Name == "" {
			errs = append(errs, fmt.Errorf("items[%d]: name is required", i))
		} else if _, dup := names[item.Name]; dup {
			errs = append(errs, fmt.Errorf("items[%d]: duplicate name %q", i, item.Name))
		}
		names[item.Name] = struct{}{}
		if err := compile(item.Selector); err != nil {
			errs = append(errs, fmt.Errorf("item %q selector: %w", item.Name, err))
		}
		if len(item.Fields) == 0 {
			errs = append(errs, fmt.Errorf("item %q declares no fields", item.Name))
		}
		fields := make(map[string]struct{})
		for _, f := range item.Fields {
			if f.Name == "" {
				errs = append(errs, fmt.Errorf("item %q: field name is required", item.Name))
				continue
			}
			if _, dup := fields[f.Name]; dup {
				errs = append(errs, fmt.Errorf("item %q: duplicate field %q", item.Name, f.Name))
			}
			fields[f.Name] = struct{}{}
			if f.Selector != "" && !f.Source.IsPageLevel() {
				if err := compile(f.Selector); err != nil {
					errs = append(errs, fmt.Errorf("field %s.%s selector: %w", item.Name, f.Name, err))
				}
			}
		}
	}
	return errs
}

func (c *Config) validateTransforms() []error {
	var errs []error
	declared := c.FieldNames()
	for field, steps := range c.Fields {
		if !slices.Contains(declared, field) {
			errs = append(errs, fmt.Errorf("normalization for undeclared field %q", field))
		}
		for i, step := range steps {
			switch step.Kind {
			case TransformTrim, TransformLower, TransformUpper, TransformCasefold,
				TransformCollapseWhitespace, TransformDeaccent, TransformStripPunctuation,
				TransformNumber:
			case TransformDate:
				if len(step.Formats) == 0 {
					errs = append(errs, fmt.Errorf("fields.%s[%d]: date step needs formats", field, i))
				}
			case TransformMatch:
				if len(step.Vocabulary) == 0 {
					errs = append(errs, fmt.Errorf("fields.%s[%d]: match step needs a vocabulary", field, i))
				}
				if step.MinScore < 0 || step.MinScore > 1 {
					errs = append(errs, fmt.Errorf("fields.%s[%d]: min_score must be within [0,1]", field, i))
				}
			case TransformTokenize:
				switch step.Stopwords {
				case "", "none", "english":
				default:
					errs = append(errs, fmt.Errorf("fields.%s[%d]: unknown stopword set %q", field, i, step.Stopwords))
				}
			default:
				errs = append(errs, fmt.Errorf("fields.%s[%d]: unknown step %q", field, i, step.Kind))
			}
		}
	}
	return errs
}

func compile(selector string) error {
	if selector == "" {
		return errors.New("selector is empty")
	}
	if _, err := cascadia.Compile(selector); err != nil {
		return fmt.Errorf("compile %q: %w", selector, err)
	}
	return nil
}
