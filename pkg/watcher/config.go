package watcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPipelineConfig reads and validates a pipeline declaration from a YAML
// file:
//
//	pipeline:
//	  name: orders_load
//	  pipeline_type_name: load
//	address_lineage:
//	  source_addresses:
//	    - name: raw.orders
//	      address_type_name: table
//	      address_type_group_name: postgres
//	  target_addresses:
//	    - name: warehouse.orders
//	      address_type_name: table
//	      address_type_group_name: snowflake
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config %s: %w", path, err)
	}

	var config PipelineConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config %s: %w", path, err)
	}
	return &config, nil
}
