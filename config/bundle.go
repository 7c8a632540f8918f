package config

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/afero/zipfs"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
)

const (
	// Key prefix of settings carried by a message bundle
	MessagePrefix = "mailer."

	bundleManifest = "message_config.yaml"
	bundleFilesDir = "files"
)

var errNotLoaded = errors.New("configuration was not loaded")

// Defaults applied after an import for bundles written
// before these settings existed
var legacyMessageDefaults = [][2]string{
	{"message_type", "email"},
	{"target_field", "to"},
	{"target_type", "file"},
}

// MessageConfig is the set of "mailer." settings with the prefix stripped
type MessageConfig map[string]any

// MessageConfig collects every known message setting
func (c *AConfig) MessageConfig() MessageConfig {
	out := MessageConfig{}
	if c.viper == nil {
		return out
	}
	for _, k := range c.viper.AllKeys() {
		if strings.HasPrefix(k, MessagePrefix) {
			out[strings.TrimPrefix(k, MessagePrefix)] = c.viper.Get(k)
		}
	}
	return out
}

// ApplyMessageConfig replaces the message settings with data. Unknown keys
// are ignored and known keys missing from data are reset to an empty value
// of their current type.
func (c *AConfig) ApplyMessageConfig(data MessageConfig) error {
	if c.viper == nil {
		return errNotLoaded
	}

	unset := c.MessageConfig()
	for k, v := range data {
		k = strings.ToLower(k)
		if _, ok := unset[k]; !ok {
			log.WithField("key", k).Debug("ignoring unknown message setting")
			continue
		}
		c.viper.Set(MessagePrefix+k, v)
		delete(unset, k)
	}

	for k, old := range unset {
		if empty, ok := emptyValueOf(old); ok {
			c.viper.Set(MessagePrefix+k, empty)
		}
	}

	for _, kv := range legacyMessageDefaults {
		if cast.ToString(c.viper.Get(MessagePrefix+kv[0])) == "" {
			c.viper.Set(MessagePrefix+kv[0], kv[1])
		}
	}

	return c.reload()
}

// Zero value for primitive and container types, ok=false otherwise
func emptyValueOf(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return reflect.Zero(t).Interface(), true
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface(), true
	case reflect.Map:
		return reflect.MakeMap(t).Interface(), true
	default:
		return nil, false
	}
}

// ExportMessageBundle writes the message settings and the files they
// reference into a zip archive at target
func (c *AConfig) ExportMessageBundle(target string) (err error) {
	if c.viper == nil {
		return errNotLoaded
	}
	f, err := c.AppFs.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return c.WriteMessageBundle(f)
}

// WriteMessageBundle streams the message bundle archive to w
func (c *AConfig) WriteMessageBundle(w io.Writer) (err error) {
	if c.viper == nil {
		return errNotLoaded
	}
	msg := c.MessageConfig()

	zw := zip.NewWriter(w)
	defer func() {
		err = errors.Join(err, zw.Close())
	}()

	// Referenced files travel under "files/" by base name
	keys := make([]string, 0, len(msg))
	for k := range msg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := cast.ToString(msg[k])
		if !strings.HasSuffix(k, "_file") || p == "" {
			continue
		}
		if !c.AppFs.IsReadable(p) {
			log.WithField("file", p).Warn("skipping unreadable file in message bundle")
			continue
		}
		name := filepath.Base(p)
		if err := c.copyIntoZip(zw, p, path.Join(bundleFilesDir, name)); err != nil {
			return fmt.Errorf("bundle %s: %w", p, err)
		}
		msg[k] = name
	}

	raw, err := yaml.Marshal(map[string]any(msg))
	if err != nil {
		return err
	}
	mw, err := zw.Create(bundleManifest)
	if err != nil {
		return err
	}
	_, err = mw.Write(raw)
	return err
}

func (c *AConfig) copyIntoZip(zw *zip.Writer, src, name string) error {
	in, err := c.AppFs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// ImportMessageBundle loads a bundle written by ExportMessageBundle,
// extracting its files into destDir
func (c *AConfig) ImportMessageBundle(source, destDir string) error {
	f, err := c.AppFs.Open(source)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return fmt.Errorf("invalid message bundle: %w", err)
	}
	return c.ImportMessageBundleZip(zr, destDir)
}

// ImportMessageBundleZip loads an already opened bundle archive
func (c *AConfig) ImportMessageBundleZip(zr *zip.Reader, destDir string) error {
	return c.importMessageBundle(zipfs.New(zr), destDir)
}

func (c *AConfig) importMessageBundle(bundle afero.Fs, destDir string) error {
	raw, err := afero.ReadFile(bundle, "/"+bundleManifest)
	if err != nil {
		return fmt.Errorf("invalid message bundle: %w", err)
	}

	data := MessageConfig{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("invalid message bundle: %w", err)
	}

	if !c.AppFs.isDir(destDir) {
		if err := c.AppFs.MkdirAll(destDir, 0755); err != nil {
			return err
		}
	}

	for k, v := range data {
		name := cast.ToString(v)
		if !strings.HasSuffix(k, "_file") || name == "" {
			continue
		}
		src := "/" + path.Join(bundleFilesDir, filepath.Base(name))
		if ok, _ := afero.Exists(bundle, src); !ok {
			continue
		}
		dst := filepath.Join(destDir, filepath.Base(name))
		if err := copyFile(bundle, src, c.AppFs, dst); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
		data[k] = dst
	}

	return c.ApplyMessageConfig(data)
}

func copyFile(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	in, err := srcFs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dstFs.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	return errors.Join(err, out.Close())
}
