// SPDX-License-Identifier: MPL-2.0

// Package config handles rosstrap configuration using Viper with CUE as the file format.
//
// Every field has a default, so rosstrap runs with no configuration file at all.
// When present, a config file is loaded from --config, from
// $XDG_CONFIG_HOME/rosstrap/config.cue (default ~/.config/rosstrap/config.cue)
// or from ./config.cue, validated against the embedded #Config schema
// (config_schema.cue) and merged over the defaults. The resulting Config is
// passed explicitly into every bootstrap stage.
package config
