package core

// service_mutations.go provides read, update and delete access to stored
// records. Updates re-run the field validators and reference checks for
// the fields they change; a crash update never re-derives its id.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// notFound converts a store ErrNotFound into a NotFound failure.
func notFound(entity Entity, key string, err error) error {
	if errors.Is(err, ErrNotFound) {
		if _, ok := AsFailure(err); !ok {
			return &Failure{Kind: KindNotFound, Entity: entity, Key: key, Err: err}
		}
	}
	return err
}

// readFailure classifies errors from read-only operations.
func readFailure(entity Entity, key string, err error) error {
	return storageFailure(entity, key, notFound(entity, key, err))
}

// deleteFailure reports a foreign key violation on delete as a record
// still in use.
func deleteFailure(entity Entity, key string, err error) error {
	if errors.Is(err, ErrForeignKey) {
		return &Failure{Kind: KindStorageFailure, Entity: entity, Key: key, Err: fmt.Errorf("%w: %w", ErrReferenceInUse, err)}
	}
	return notFound(entity, key, err)
}

func pageFailure(entity Entity, p Page) (Page, error) {
	p, v := ValidatePage(p)
	if len(v) > 0 {
		return p, validationFailure(entity, v)
	}
	return p, nil
}

// GetCrash returns one crash by id.
func (s *Service) GetCrash(ctx context.Context, id string) (CrashRecord, error) {
	var rec CrashRecord
	err := s.readTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.GetCrash(ctx, id)
		return err
	})
	if err != nil {
		return CrashRecord{}, readFailure(EntityCrash, id, err)
	}
	return rec, nil
}

// ListCrashes returns one page of crashes ordered by id.
func (s *Service) ListCrashes(ctx context.Context, p Page) ([]CrashRecord, error) {
	p, err := pageFailure(EntityCrash, p)
	if err != nil {
		return nil, err
	}
	var recs []CrashRecord
	err = s.readTx(ctx, func(tx Tx) error {
		var err error
		recs, err = tx.ListCrashes(ctx, p)
		return err
	})
	if err != nil {
		return nil, readFailure(EntityCrash, "", err)
	}
	return recs, nil
}

// UpdateCrash applies patch to crash id. The identifier is kept even when
// identity fields change.
func (s *Service) UpdateCrash(ctx context.Context, id string, patch CrashPatch) (rec CrashRecord, err error) {
	start := time.Now()
	defer func() { s.observe(EntityCrash, "update", err, start) }()

	err = s.withTx(ctx, func(tx Tx) error {
		cur, err := tx.GetCrash(ctx, id)
		if err != nil {
			return notFound(EntityCrash, id, err)
		}

		in := CrashInput{
			IncidentDate: cur.IncidentDate,
			Latitude:     cur.Latitude,
			Longitude:    cur.Longitude,
			StreetNo:     cur.StreetNo,
			StreetName:   cur.StreetName,
		}
		if patch.IncidentDate != nil {
			in.IncidentDate = WallClock(*patch.IncidentDate)
		}
		if patch.Latitude != nil {
			in.Latitude = *patch.Latitude
		}
		if patch.Longitude != nil {
			in.Longitude = *patch.Longitude
		}
		if patch.StreetNo != nil {
			in.StreetNo = patch.StreetNo
		}
		if patch.StreetName != nil {
			in.StreetName = patch.StreetName
		}
		if v := validateCrash(in, s.fence, s.now()); len(v) > 0 {
			return validationFailure(EntityCrash, v)
		}

		rec = CrashRecord{
			CrashRecordID: cur.CrashRecordID,
			IncidentDate:  in.IncidentDate,
			Latitude:      TruncateCoordinate(in.Latitude),
			Longitude:     TruncateCoordinate(in.Longitude),
			StreetNo:      in.StreetNo,
			StreetName:    in.StreetName,
		}
		return notFound(EntityCrash, id, tx.UpdateCrash(ctx, rec))
	})
	if err != nil {
		return CrashRecord{}, storageFailure(EntityCrash, id, err)
	}

	slog.Info("crash updated", "id", id, "source", SourceFromContext(ctx))
	return rec, nil
}

// DeleteCrash removes crash id. It fails while people, vehicles or detail
// rows still reference it.
func (s *Service) DeleteCrash(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.observe(EntityCrash, "delete", err, start) }()

	err = s.withTx(ctx, func(tx Tx) error {
		return deleteFailure(EntityCrash, id, tx.DeleteCrash(ctx, id))
	})
	if err != nil {
		return storageFailure(EntityCrash, id, err)
	}
	slog.Info("crash deleted", "id", id, "source", SourceFromContext(ctx))
	return nil
}

// GetPerson returns one person by id.
func (s *Service) GetPerson(ctx context.Context, id string) (Person, error) {
	var rec Person
	err := s.readTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.GetPerson(ctx, id)
		return err
	})
	if err != nil {
		return Person{}, readFailure(EntityPerson, id, err)
	}
	return rec, nil
}

// ListPeople returns one page of people ordered by id.
func (s *Service) ListPeople(ctx context.Context, p Page) ([]Person, error) {
	p, err := pageFailure(EntityPerson, p)
	if err != nil {
		return nil, err
	}
	var recs []Person
	err = s.readTx(ctx, func(tx Tx) error {
		var err error
		recs, err = tx.ListPeople(ctx, p)
		return err
	})
	if err != nil {
		return nil, readFailure(EntityPerson, "", err)
	}
	return recs, nil
}

// UpdatePerson applies the non-nil fields of patch to person id.
func (s *Service) UpdatePerson(ctx context.Context, id string, patch PersonInput) (rec Person, err error) {
	start := time.Now()
	defer func() { s.observe(EntityPerson, "update", err, start) }()

	if v := validatePerson(patch); len(v) > 0 {
		return Person{}, validationFailure(EntityPerson, v)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		cur, err := tx.GetPerson(ctx, id)
		if err != nil {
			return notFound(EntityPerson, id, err)
		}

		// Only references the patch changes are re-checked.
		changed := personFromInput(PersonInput{CrashRecordID: patch.CrashRecordID, VehicleID: patch.VehicleID})
		if err := checkReferences(ctx, tx, EntityPerson, personReferences(changed)); err != nil {
			return err
		}

		rec = mergePerson(cur, patch)
		if err := tx.UpdatePerson(ctx, rec); err != nil {
			return insertFailure(EntityPerson, id, notFound(EntityPerson, id, err))
		}
		return nil
	})
	if err != nil {
		return Person{}, storageFailure(EntityPerson, id, err)
	}

	slog.Info("person updated", "id", id, "source", SourceFromContext(ctx))
	return rec, nil
}

func mergePerson(p Person, patch PersonInput) Person {
	if patch.PersonType != nil {
		p.PersonType = patch.PersonType
	}
	if patch.CrashRecordID != nil && *patch.CrashRecordID != "" {
		p.CrashRecordID = patch.CrashRecordID
	}
	if patch.VehicleID != nil {
		p.VehicleID = patch.VehicleID
	}
	if patch.Sex != nil {
		p.Sex = patch.Sex
	}
	if patch.Age != nil {
		p.Age = patch.Age
	}
	if patch.SafetyEquipment != nil {
		p.SafetyEquipment = patch.SafetyEquipment
	}
	if patch.AirbagDeployed != nil {
		p.AirbagDeployed = patch.AirbagDeployed
	}
	if patch.InjuryClassification != nil {
		p.InjuryClassification = patch.InjuryClassification
	}
	return p
}

// DeletePerson removes person id.
func (s *Service) DeletePerson(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.observe(EntityPerson, "delete", err, start) }()

	err = s.withTx(ctx, func(tx Tx) error {
		return deleteFailure(EntityPerson, id, tx.DeletePerson(ctx, id))
	})
	if err != nil {
		return storageFailure(EntityPerson, id, err)
	}
	slog.Info("person deleted", "id", id, "source", SourceFromContext(ctx))
	return nil
}

// GetVehicle returns one vehicle by id.
func (s *Service) GetVehicle(ctx context.Context, id int64) (Vehicle, error) {
	key := strconv.FormatInt(id, 10)
	var rec Vehicle
	err := s.readTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.GetVehicle(ctx, id)
		return err
	})
	if err != nil {
		return Vehicle{}, readFailure(EntityVehicle, key, err)
	}
	return rec, nil
}

// ListVehicles returns one page of vehicles ordered by id.
func (s *Service) ListVehicles(ctx context.Context, p Page) ([]Vehicle, error) {
	p, err := pageFailure(EntityVehicle, p)
	if err != nil {
		return nil, err
	}
	var recs []Vehicle
	err = s.readTx(ctx, func(tx Tx) error {
		var err error
		recs, err = tx.ListVehicles(ctx, p)
		return err
	})
	if err != nil {
		return nil, readFailure(EntityVehicle, "", err)
	}
	return recs, nil
}

// UpdateVehicle applies the non-nil fields of patch to vehicle id. The
// allocated vehicle_id and crash_unit_id never change.
func (s *Service) UpdateVehicle(ctx context.Context, id int64, patch VehicleInput) (rec Vehicle, err error) {
	start := time.Now()
	defer func() { s.observe(EntityVehicle, "update", err, start) }()
	key := strconv.FormatInt(id, 10)

	if v := validateVehicle(patch, s.now()); len(v) > 0 {
		return Vehicle{}, validationFailure(EntityVehicle, v)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		cur, err := tx.GetVehicle(ctx, id)
		if err != nil {
			return notFound(EntityVehicle, key, err)
		}
		if patch.CrashRecordID != "" && patch.CrashRecordID != cur.CrashRecordID {
			refs := []ReferenceCheck{{Field: ColCrashRecordID, Ref: RefCrash, Value: patch.CrashRecordID}}
			if err := checkReferences(ctx, tx, EntityVehicle, refs); err != nil {
				return err
			}
		}

		rec = mergeVehicle(cur, patch)
		if err := tx.UpdateVehicle(ctx, rec); err != nil {
			return insertFailure(EntityVehicle, key, notFound(EntityVehicle, key, err))
		}
		return nil
	})
	if err != nil {
		return Vehicle{}, storageFailure(EntityVehicle, key, err)
	}

	slog.Info("vehicle updated", "id", id, "source", SourceFromContext(ctx))
	return rec, nil
}

func mergeVehicle(v Vehicle, patch VehicleInput) Vehicle {
	if patch.CrashRecordID != "" {
		v.CrashRecordID = patch.CrashRecordID
	}
	if patch.UnitNo != nil {
		v.UnitNo = patch.UnitNo
	}
	if patch.UnitType != nil {
		v.UnitType = patch.UnitType
	}
	if patch.NumPassengers != nil {
		v.NumPassengers = patch.NumPassengers
	}
	if patch.VehicleYear != nil {
		v.VehicleYear = patch.VehicleYear
	}
	if patch.Make != nil {
		v.Make = patch.Make
	}
	if patch.Model != nil {
		v.Model = patch.Model
	}
	if patch.VehicleType != nil {
		v.VehicleType = patch.VehicleType
	}
	return v
}

// DeleteVehicle removes vehicle id.
func (s *Service) DeleteVehicle(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { s.observe(EntityVehicle, "delete", err, start) }()
	key := strconv.FormatInt(id, 10)

	err = s.withTx(ctx, func(tx Tx) error {
		return deleteFailure(EntityVehicle, key, tx.DeleteVehicle(ctx, id))
	})
	if err != nil {
		return storageFailure(EntityVehicle, key, err)
	}
	slog.Info("vehicle deleted", "id", id, "source", SourceFromContext(ctx))
	return nil
}

// detailDefinition resolves a registered detail table or fails NotFound.
func detailDefinition(key string) (DetailDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return DetailDefinition{}, &Failure{Kind: KindNotFound, Entity: "detail", Key: key, Err: fmt.Errorf("unknown detail table %q", key)}
	}
	return def, nil
}

// CreateDetail stores a detail row. raw carries the parent id under the
// parent column name plus the detail values; the parent must exist and
// must not already have a row in this table.
func (s *Service) CreateDetail(ctx context.Context, table string, raw map[string]any) (row DetailRow, err error) {
	def, err := detailDefinition(table)
	if err != nil {
		return DetailRow{}, err
	}
	entity := Entity(def.Info.Key)
	start := time.Now()
	defer func() { s.observe(entity, "create", err, start) }()

	var parentText string
	if v, ok := raw[def.ParentColumn()]; ok && v != nil {
		parentText = fmt.Sprint(v)
	}
	parentID, err := ParseParentID(def, parentText)
	if err != nil {
		return DetailRow{}, err
	}
	key := fmt.Sprint(parentID)

	values, v := NormalizeDetailValues(def, raw, false)
	if len(v) > 0 {
		return DetailRow{}, validationFailure(entity, v)
	}
	row = DetailRow{Table: def.Info.Key, ParentID: parentID, Values: values}

	err = s.withTx(ctx, func(tx Tx) error {
		refs := []ReferenceCheck{{Field: def.ParentColumn(), Ref: def.ParentRef(), Value: parentID}}
		if err := checkReferences(ctx, tx, entity, refs); err != nil {
			return err
		}
		exists, err := tx.Exists(ctx, def.Info.Key, def.ParentColumn(), parentID)
		if err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if exists {
			return &Failure{Kind: KindDuplicateRecord, Entity: entity, Key: key}
		}
		if err := tx.InsertDetail(ctx, def, row); err != nil {
			if errors.Is(err, ErrConflict) {
				return &Failure{Kind: KindDuplicateRecord, Entity: entity, Key: key, Err: err}
			}
			return insertFailure(entity, key, err)
		}
		return nil
	})
	if err != nil {
		return DetailRow{}, storageFailure(entity, key, err)
	}

	slog.Info("detail created", "table", def.Info.Key, "parent", key, "source", SourceFromContext(ctx))
	return row, nil
}

// GetDetail returns the detail row of parentID.
func (s *Service) GetDetail(ctx context.Context, table, parentID string) (DetailRow, error) {
	def, err := detailDefinition(table)
	if err != nil {
		return DetailRow{}, err
	}
	pid, err := ParseParentID(def, parentID)
	if err != nil {
		return DetailRow{}, err
	}

	var row DetailRow
	err = s.readTx(ctx, func(tx Tx) error {
		var err error
		row, err = tx.GetDetail(ctx, def, pid)
		return err
	})
	if err != nil {
		return DetailRow{}, readFailure(Entity(def.Info.Key), parentID, err)
	}
	return row, nil
}

// UpdateDetail applies the keys present in raw to the detail row of
// parentID.
func (s *Service) UpdateDetail(ctx context.Context, table, parentID string, raw map[string]any) (row DetailRow, err error) {
	def, err := detailDefinition(table)
	if err != nil {
		return DetailRow{}, err
	}
	entity := Entity(def.Info.Key)
	start := time.Now()
	defer func() { s.observe(entity, "update", err, start) }()

	pid, err := ParseParentID(def, parentID)
	if err != nil {
		return DetailRow{}, err
	}
	changes, v := NormalizeDetailValues(def, raw, true)
	if len(v) > 0 {
		return DetailRow{}, validationFailure(entity, v)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		cur, err := tx.GetDetail(ctx, def, pid)
		if err != nil {
			return notFound(entity, parentID, err)
		}
		for k, val := range changes {
			cur.Values[k] = val
		}
		row = cur
		return notFound(entity, parentID, tx.UpdateDetail(ctx, def, row))
	})
	if err != nil {
		return DetailRow{}, storageFailure(entity, parentID, err)
	}
	return row, nil
}

// DeleteDetail removes the detail row of parentID.
func (s *Service) DeleteDetail(ctx context.Context, table, parentID string) (err error) {
	def, err := detailDefinition(table)
	if err != nil {
		return err
	}
	entity := Entity(def.Info.Key)
	start := time.Now()
	defer func() { s.observe(entity, "delete", err, start) }()

	pid, err := ParseParentID(def, parentID)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx Tx) error {
		return deleteFailure(entity, parentID, tx.DeleteDetail(ctx, def, pid))
	})
	if err != nil {
		return storageFailure(entity, parentID, err)
	}
	return nil
}

// ListDetailTables describes every registered detail table.
func (s *Service) ListDetailTables() []DetailInfo {
	defs := All()
	infos := make([]DetailInfo, len(defs))
	for i, d := range defs {
		infos[i] = d.Info
	}
	return infos
}
