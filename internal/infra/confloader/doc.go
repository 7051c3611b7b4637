// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Values already present in the target struct
//  2. A YAML configuration file
//  3. Environment variables
//  4. Explicit maps (LoadMap)
//
// Environment variables carry a prefix and use a double underscore to
// separate nesting levels, so WALLETMESH_STORAGE__DATA_DIR sets
// storage.data_dir.
package confloader
