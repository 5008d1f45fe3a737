package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"

	"github.com/straja-ai/ulap/internal/decision"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxUploadBytes < 0 {
		return errors.New("server.max_upload_bytes must not be negative")
	}
	for i, k := range cfg.Server.APIKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("server.api_keys[%d] is empty", i)
		}
	}

	if strings.TrimSpace(cfg.Registry.LabelsPath) == "" {
		return errors.New("registry.labels_path must be set")
	}
	if strings.TrimSpace(cfg.Registry.DescriptionsPath) == "" {
		return errors.New("registry.descriptions_path must be set")
	}
	if strings.TrimSpace(cfg.Registry.IndicationsPath) == "" {
		return errors.New("registry.indications_path must be set")
	}

	if strings.TrimSpace(cfg.Model.Path) == "" {
		return errors.New("model.path must be set")
	}
	if cfg.Model.InputSize < 0 {
		return errors.New("model.input_size must not be negative")
	}
	if cfg.Model.InferenceTimeout < 0 {
		return errors.New("model.inference_timeout must not be negative")
	}

	if err := validateDecisionConfig(cfg.Decision); err != nil {
		return err
	}
	if err := validateCameraConfig(cfg.Camera); err != nil {
		return err
	}

	if cfg.Cache.Enabled && cfg.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive when cache is enabled")
	}
	if cfg.Cache.MaxDistance < 0 || cfg.Cache.MaxDistance > 64 {
		return fmt.Errorf("cache.max_distance must be within [0, 64], got %d", cfg.Cache.MaxDistance)
	}

	if err := validateEventsConfig(cfg.Events); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}

	return nil
}

func validateDecisionConfig(d DecisionConfig) error {
	c, t := d.ConfidentThreshold, d.TentativeThreshold
	if math.IsNaN(c) || math.IsNaN(t) {
		return errors.New("decision thresholds must be numbers")
	}
	if !(t >= decision.DefaultTentativeThreshold && t <= c && c <= 1) {
		return fmt.Errorf("decision thresholds must satisfy %.2f <= tentative (%g) <= confident (%g) <= 1",
			decision.DefaultTentativeThreshold, t, c)
	}
	return nil
}

func validateCameraConfig(c CameraConfig) error {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "", "none":
		return nil
	case "http":
		u, err := url.Parse(c.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("camera.url must be an absolute URL for type http")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("camera.url must be http or https")
		}
	case "file":
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("camera.path must be set for type file")
		}
	default:
		return fmt.Errorf("camera.type must be http, file or none, got %q", c.Type)
	}
	if c.CaptureTimeout < 0 {
		return errors.New("camera.capture_timeout must not be negative")
	}
	return nil
}

func validateEventsConfig(e EventsConfig) error {
	if e.QueueSize < 0 || e.Workers < 0 {
		return errors.New("events.queue_size and events.workers must not be negative")
	}
	for i, s := range e.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("events sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("events sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("events sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("events sink %d (webhook) url must be http or https", i)
			}
			if err := blockPrivateHost(u.Host, s.AllowPrivateNetworks); err != nil {
				return fmt.Errorf("events sink %d (webhook) url blocked: %w", i, err)
			}
		default:
			return fmt.Errorf("events sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if strings.Contains(hostport, "]") || strings.Contains(hostport, ":") {
		h, _, err := net.SplitHostPort(hostport)
		if err == nil {
			host = h
		}
	}
	lc := strings.ToLower(strings.TrimSpace(host))
	if lc == "localhost" {
		return errors.New("private network host localhost blocked for SSRF safety")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	privateBlocks := []*net.IPNet{
		{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
		{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
		{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
		{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
		{IP: net.ParseIP("169.254.0.0"), Mask: net.CIDRMask(16, 32)},
		{IP: net.ParseIP("::1"), Mask: net.CIDRMask(128, 128)},
		{IP: net.ParseIP("fc00::"), Mask: net.CIDRMask(7, 128)},
		{IP: net.ParseIP("fe80::"), Mask: net.CIDRMask(10, 128)},
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
