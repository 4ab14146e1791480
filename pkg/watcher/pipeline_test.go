package watcher

import (
	"testing"
)

func validPipeline() Pipeline {
	return Pipeline{Name: "orders_load", PipelineTypeName: "load"}
}

func TestPipelineValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Pipeline)
		wantErr bool
	}{
		{"valid minimal", func(p *Pipeline) {}, false},
		{"missing name", func(p *Pipeline) { p.Name = "" }, true},
		{"missing type", func(p *Pipeline) { p.PipelineTypeName = "" }, true},
		{"valid freshness", func(p *Pipeline) { p.FreshnessNumber = 2; p.FreshnessDatePart = DatePartDay }, false},
		{"bad freshness datepart", func(p *Pipeline) { p.FreshnessDatePart = "fortnight" }, true},
		{"bad timeliness datepart", func(p *Pipeline) { p.TimelinessDatePart = "epoch" }, true},
		{"negative freshness", func(p *Pipeline) { p.FreshnessNumber = -1 }, true},
		{"negative timeliness", func(p *Pipeline) { p.TimelinessNumber = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPipeline()
			tt.mutate(&p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatePartValid(t *testing.T) {
	for _, d := range []DatePart{DatePartYear, DatePartMonth, DatePartWeek, DatePartDay, DatePartHour, DatePartMinute} {
		if !d.Valid() {
			t.Errorf("%q should be valid", d)
		}
	}
	if DatePart("second").Valid() {
		t.Error("unknown datepart should be invalid")
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	cfg := PipelineConfig{Pipeline: validPipeline()}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	cfg.AddressLineage = &AddressLineage{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty lineage should fail validation")
	}

	cfg.Pipeline.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Error("invalid pipeline should fail validation")
	}
}

func TestAddressLineageValidate(t *testing.T) {
	addr := func(name string) Address {
		return Address{Name: name, AddressTypeName: "table", AddressTypeGroupName: "postgres"}
	}

	tests := []struct {
		name    string
		lineage AddressLineage
		wantErr bool
	}{
		{
			name: "valid",
			lineage: AddressLineage{
				SourceAddresses: []Address{addr("raw.orders")},
				TargetAddresses: []Address{addr("warehouse.orders")},
			},
		},
		{
			name:    "no sources",
			lineage: AddressLineage{TargetAddresses: []Address{addr("warehouse.orders")}},
			wantErr: true,
		},
		{
			name:    "no targets",
			lineage: AddressLineage{SourceAddresses: []Address{addr("raw.orders")}},
			wantErr: true,
		},
		{
			name: "invalid source address",
			lineage: AddressLineage{
				SourceAddresses: []Address{{Name: "raw.orders"}},
				TargetAddresses: []Address{addr("warehouse.orders")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.lineage.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddressValidate(t *testing.T) {
	tests := []struct {
		name    string
		addr    Address
		wantErr bool
	}{
		{"valid", Address{Name: "raw.orders", AddressTypeName: "table", AddressTypeGroupName: "postgres"}, false},
		{"missing name", Address{AddressTypeName: "table", AddressTypeGroupName: "postgres"}, true},
		{"missing type", Address{Name: "raw.orders", AddressTypeGroupName: "postgres"}, true},
		{"missing group", Address{Name: "raw.orders", AddressTypeName: "table"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.addr.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestETLResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  ETLResult
		wantErr bool
	}{
		{"empty", ETLResult{}, false},
		{"valid counters", ETLResult{CompletedSuccessfully: true, Inserts: Int64(100), TotalRows: Int64(100)}, false},
		{"zero counter", ETLResult{Inserts: Int64(0)}, false},
		{"negative inserts", ETLResult{Inserts: Int64(-1)}, true},
		{"negative total rows", ETLResult{TotalRows: Int64(-5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if _, ok := err.(*ResultError); !ok {
					t.Errorf("error type = %T, want *ResultError", err)
				}
			}
		})
	}
}
