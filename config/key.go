// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

// KeyConfig supplies a default for a single key that the underlying
// configuration leaves unset. The default is marshaled along with
// the rest of the configuration, so that it survives when the
// configuration is shipped to another process.
type KeyConfig struct {
	Config
	Key string
	Val interface{}
}

// Value returns the underlying value for key, falling back to Val
// when key is c.Key and the underlying configuration has no value.
func (c *KeyConfig) Value(key string) interface{} {
	if v := c.Config.Value(key); v != nil || key != c.Key {
		return v
	}
	return c.Val
}

// Marshal marshals the underlying configuration, adding the default
// if the underlying configuration did not set c.Key.
func (c *KeyConfig) Marshal(keys Keys) error {
	if err := c.Config.Marshal(keys); err != nil {
		return err
	}
	if keys[c.Key] == nil {
		keys[c.Key] = c.Val
	}
	return nil
}

// Keys returns the underlying keys with the default applied.
func (c *KeyConfig) Keys() Keys {
	keys := make(Keys)
	for k, v := range c.Config.Keys() {
		keys[k] = v
	}
	if keys[c.Key] == nil {
		keys[c.Key] = c.Val
	}
	return keys
}

// StaticKeyConfig pins the value of a single key, overriding the
// underlying configuration. The pinned value is local to this
// process: it is not marshaled.
type StaticKeyConfig struct {
	Config
	Key string
	Val interface{}
}

// Value returns Val for c.Key and the underlying value otherwise.
func (c *StaticKeyConfig) Value(key string) interface{} {
	if key == c.Key {
		return c.Val
	}
	return c.Config.Value(key)
}
