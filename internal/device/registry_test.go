package device

import (
	"errors"
	"testing"
)

func TestRegistry_UpsertCreatesAndUpdates(t *testing.T) {
	r := NewRegistry()
	key := Key{DeviceType: "light", Room: "1", Sub: "0"}

	rec, changed := r.Upsert(key, true)
	if !changed {
		t.Error("first Upsert() reported no change")
	}
	if rec.ID != "bestin_light_1_0" {
		t.Errorf("ID = %q, want bestin_light_1_0", rec.ID)
	}
	if rec.Name != "Light 1 0" {
		t.Errorf("Name = %q, want Light 1 0", rec.Name)
	}
	if rec.Category != CategoryLight {
		t.Errorf("Category = %q, want light", rec.Category)
	}
	if rec.State != true {
		t.Errorf("State = %v, want true", rec.State)
	}

	if _, changed := r.Upsert(key, true); changed {
		t.Error("Upsert() with identical state reported a change")
	}

	rec, changed = r.Upsert(key, false)
	if !changed {
		t.Error("Upsert() with new state reported no change")
	}
	if rec.State != false {
		t.Errorf("State = %v, want false", rec.State)
	}
	if got := r.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestRegistry_UpsertComparesDeeply(t *testing.T) {
	r := NewRegistry()
	key := Key{DeviceType: "thermostat", Room: "2"}

	type state struct {
		Power  bool
		Target float64
	}
	r.Upsert(key, state{Power: true, Target: 22.5})
	if _, changed := r.Upsert(key, state{Power: true, Target: 22.5}); changed {
		t.Error("equal struct state reported as changed")
	}
	if _, changed := r.Upsert(key, state{Power: true, Target: 23}); !changed {
		t.Error("different struct state reported as unchanged")
	}
}

func TestRegistry_GetAndGetByID(t *testing.T) {
	r := NewRegistry()
	key := Key{DeviceType: "outlet:powerusage", Room: "1", Sub: "power usage 0"}
	r.Upsert(key, 12.5)

	rec, err := r.Get(key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.ID != "bestin_outlet_powerusage_1_power_usage_0" {
		t.Errorf("ID = %q, colons and spaces not flattened", rec.ID)
	}

	byID, err := r.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Key != key {
		t.Errorf("GetByID() key = %+v, want %+v", byID.Key, key)
	}

	if _, err := r.Get(Key{DeviceType: "light", Room: "9"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() unknown key error = %v, want ErrNotFound", err)
	}
	if _, err := r.GetByID("bestin_nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() unknown id error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_ListOrderAndCategories(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Key{DeviceType: "light", Room: "1", Sub: "0"}, true)
	r.Upsert(Key{DeviceType: "outlet", Room: "1", Sub: "0"}, false)
	r.Upsert(Key{DeviceType: "light", Room: "2", Sub: "0"}, false)
	r.Upsert(Key{DeviceType: "energy:totalusage", Room: "electric"}, 1.5)

	all := r.List()
	if len(all) != 4 {
		t.Fatalf("List() returned %d records, want 4", len(all))
	}
	if all[0].Key.Room != "1" || all[2].Key.Room != "2" {
		t.Error("List() not in discovery order")
	}

	lights := r.ListByCategory(CategoryLight)
	if len(lights) != 2 {
		t.Errorf("ListByCategory(light) = %d records, want 2", len(lights))
	}
	sensors := r.ListByCategory(CategorySensor)
	if len(sensors) != 1 || sensors[0].Key.DeviceType != "energy:totalusage" {
		t.Errorf("ListByCategory(sensor) = %+v, want the energy facet", sensors)
	}
}

func TestRegistry_SubscribeNotifiesOnChange(t *testing.T) {
	r := NewRegistry()
	key := Key{DeviceType: "light", Room: "1", Sub: "0"}

	var notified []Record
	cancel := r.Subscribe(key, func(rec Record) {
		notified = append(notified, rec)
	})

	r.Upsert(key, true)  // creation
	r.Upsert(key, true)  // no change
	r.Upsert(key, false) // change

	if len(notified) != 2 {
		t.Fatalf("listener fired %d times, want 2", len(notified))
	}
	if notified[0].State != true || notified[1].State != false {
		t.Errorf("notifications = %v, %v; want true then false",
			notified[0].State, notified[1].State)
	}

	cancel()
	r.Upsert(key, true)
	if len(notified) != 2 {
		t.Error("listener fired after cancellation")
	}
}

func TestRegistry_SubscribeOtherKeyUnaffected(t *testing.T) {
	r := NewRegistry()
	fired := false
	r.Subscribe(Key{DeviceType: "light", Room: "1", Sub: "1"}, func(Record) {
		fired = true
	})

	r.Upsert(Key{DeviceType: "light", Room: "1", Sub: "0"}, true)
	if fired {
		t.Error("listener fired for a different key")
	}
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		deviceType string
		want       Category
	}{
		{"light", CategoryLight},
		{"dimming", CategoryLight},
		{"outlet", CategorySwitch},
		{"thermostat", CategoryClimate},
		{"fan", CategoryFan},
		{"fan:timer", CategoryNumber},
		{"energy:realtimeusage", CategorySensor},
		{"airquality", CategorySensor},
	}
	for _, tt := range tests {
		if got := CategoryFor(tt.deviceType); got != tt.want {
			t.Errorf("CategoryFor(%q) = %q, want %q", tt.deviceType, got, tt.want)
		}
	}
}

func TestDeviceID(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Key{"light", "1", "0"}, "bestin_light_1_0"},
		{Key{"gas", "5", ""}, "bestin_gas_5"},
		{Key{"outlet:standbycutoff", "2", "standby cutoff 1"}, "bestin_outlet_standbycutoff_2_standby_cutoff_1"},
	}
	for _, tt := range tests {
		if got := DeviceID(tt.key); got != tt.want {
			t.Errorf("DeviceID(%+v) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
