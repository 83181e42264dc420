package progress

import (
	"reflect"
	"testing"
)

func TestDecode_FieldFallback(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantOK   bool
		wantStep string
		wantDone []string
		wantData string
		wantHigh int
	}{
		{
			name:     "valid record",
			data:     `{"currentStep":"b","completedSteps":["a"],"moduleData":{"x":1},"highestReached":1}`,
			wantOK:   true,
			wantStep: "b",
			wantDone: []string{"a"},
			wantData: `{"x":1}`,
			wantHigh: 1,
		},
		{
			name:     "empty input",
			data:     ``,
			wantDone: []string{},
			wantData: `{}`,
		},
		{
			name:     "truncated json",
			data:     `{"currentStep":"b","completedSt`,
			wantDone: []string{},
			wantData: `{}`,
		},
		{
			name:     "array instead of object",
			data:     `["a","b"]`,
			wantDone: []string{},
			wantData: `{}`,
		},
		{
			name:     "missing fields",
			data:     `{}`,
			wantOK:   true,
			wantDone: []string{},
			wantData: `{}`,
		},
		{
			name:     "wrong types per field",
			data:     `{"currentStep":7,"completedSteps":{"a":true},"moduleData":[1,2],"highestReached":"3"}`,
			wantOK:   true,
			wantDone: []string{},
			wantData: `{}`,
		},
		{
			name:     "mixed step list keeps strings",
			data:     `{"currentStep":"c","completedSteps":["a",3,null,"b",""],"highestReached":2}`,
			wantOK:   true,
			wantStep: "c",
			wantDone: []string{"a", "b"},
			wantData: `{}`,
			wantHigh: 2,
		},
		{
			name:     "negative highest reached",
			data:     `{"highestReached":-4}`,
			wantOK:   true,
			wantDone: []string{},
			wantData: `{}`,
		},
		{
			name:     "fractional highest reached truncates",
			data:     `{"highestReached":2.9}`,
			wantOK:   true,
			wantDone: []string{},
			wantData: `{}`,
			wantHigh: 2,
		},
		{
			name:     "null module data",
			data:     `{"moduleData":null}`,
			wantOK:   true,
			wantDone: []string{},
			wantData: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := Decode([]byte(tt.data))
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if rec.CurrentStep != tt.wantStep {
				t.Errorf("CurrentStep = %q, want %q", rec.CurrentStep, tt.wantStep)
			}
			if !reflect.DeepEqual(rec.CompletedSteps, tt.wantDone) {
				t.Errorf("CompletedSteps = %#v, want %#v", rec.CompletedSteps, tt.wantDone)
			}
			if string(rec.ModuleData) != tt.wantData {
				t.Errorf("ModuleData = %s, want %s", rec.ModuleData, tt.wantData)
			}
			if rec.HighestReached != tt.wantHigh {
				t.Errorf("HighestReached = %d, want %d", rec.HighestReached, tt.wantHigh)
			}
		})
	}
}

func TestEncode_Defaults(t *testing.T) {
	data, err := Encode(Record{CurrentStep: "a", HighestReached: -1})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"currentStep":"a","completedSteps":[],"moduleData":{},"highestReached":0}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}

	rec, ok := Decode(data)
	if !ok || rec.CurrentStep != "a" {
		t.Errorf("Decode(Encode()) = %+v, %v", rec, ok)
	}
}

func TestRecord_Clone(t *testing.T) {
	orig := Record{CompletedSteps: []string{"a"}, ModuleData: []byte(`{"k":1}`)}
	c := orig.Clone()
	c.CompletedSteps[0] = "z"
	c.ModuleData[2] = 'X'

	if orig.CompletedSteps[0] != "a" {
		t.Error("Clone() shares CompletedSteps")
	}
	if string(orig.ModuleData) != `{"k":1}` {
		t.Error("Clone() shares ModuleData")
	}
}
