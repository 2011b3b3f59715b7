package core

// assembler.go implements record creation.
//
// Each Create* call moves through the same states:
//
//  1. validate the caller's fields (no storage access)
//  2. take a write slot and begin a transaction
//  3. check that populated foreign keys exist
//  4. generate the identifier
//  5. crashes only: reject an already-recorded identifier as a duplicate
//  6. insert, then commit
//
// A failure in step 1 returns before storage is touched. Any failure from
// step 2 on is returned after the transaction has been rolled back, so a
// record either exists with all its fields or not at all.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// CreateCrash validates in, derives its content-addressed id and stores it.
// Re-submitting identical attributes fails with ErrDuplicateRecord and the
// Failure's Key set to the existing id.
func (s *Service) CreateCrash(ctx context.Context, in CrashInput) (CrashRecord, error) {
	return s.createCrash(ctx, in, false)
}

// CreateCrashWithDate creates a crash and, in the same transaction, its
// crash_date detail row derived from the incident date.
func (s *Service) CreateCrashWithDate(ctx context.Context, in CrashInput) (CrashRecord, error) {
	return s.createCrash(ctx, in, true)
}

func (s *Service) createCrash(ctx context.Context, in CrashInput, withDate bool) (rec CrashRecord, err error) {
	start := time.Now()
	defer func() { s.observe(EntityCrash, "create", err, start) }()

	in.IncidentDate = WallClock(in.IncidentDate)
	if v := validateCrash(in, s.fence, s.now()); len(v) > 0 {
		return CrashRecord{}, validationFailure(EntityCrash, v)
	}

	rec = CrashRecord{
		IncidentDate: in.IncidentDate,
		Latitude:     TruncateCoordinate(in.Latitude),
		Longitude:    TruncateCoordinate(in.Longitude),
		StreetNo:     in.StreetNo,
		StreetName:   in.StreetName,
	}
	dateDef, hasDate := Get(CrashDateKey)
	withDate = withDate && hasDate

	err = s.withTx(ctx, func(tx Tx) error {
		rec.CrashRecordID = crashRecordID(in)
		slog.Debug("crash id generated", "id", rec.CrashRecordID)

		if err := insertCrash(ctx, tx, rec); err != nil {
			return err
		}
		if !withDate {
			return nil
		}
		row := DetailRow{Table: dateDef.Info.Key, ParentID: rec.CrashRecordID, Values: DeriveCrashDate(rec.IncidentDate)}
		if err := tx.InsertDetail(ctx, dateDef, row); err != nil {
			return fmt.Errorf("insert %s: %w", dateDef.Info.Key, err)
		}
		return nil
	})
	if err != nil {
		return CrashRecord{}, storageFailure(EntityCrash, rec.CrashRecordID, err)
	}

	slog.Info("crash created", "id", rec.CrashRecordID, "crash_date", withDate, "source", SourceFromContext(ctx))
	return rec, nil
}

func insertCrash(ctx context.Context, tx Tx, rec CrashRecord) error {
	exists, err := tx.Exists(ctx, TableCrashes, ColCrashRecordID, rec.CrashRecordID)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return &Failure{Kind: KindDuplicateRecord, Entity: EntityCrash, Key: rec.CrashRecordID}
	}

	if err := tx.InsertCrash(ctx, rec); err != nil {
		// The id is content-derived, so a key collision here is the same
		// event recorded by a concurrent writer, not an allocation race.
		if errors.Is(err, ErrConflict) {
			return &Failure{Kind: KindDuplicateRecord, Entity: EntityCrash, Key: rec.CrashRecordID, Err: err}
		}
		return fmt.Errorf("insert crash: %w", err)
	}
	return nil
}

// CreatePerson validates in, allocates the next person id and stores it.
func (s *Service) CreatePerson(ctx context.Context, in PersonInput) (rec Person, err error) {
	start := time.Now()
	defer func() { s.observe(EntityPerson, "create", err, start) }()

	if v := validatePerson(in); len(v) > 0 {
		return Person{}, validationFailure(EntityPerson, v)
	}

	rec = personFromInput(in)
	err = s.withTx(ctx, func(tx Tx) error {
		if err := checkReferences(ctx, tx, EntityPerson, personReferences(rec)); err != nil {
			return err
		}

		id, err := NextPersonID(ctx, tx)
		if err != nil {
			return err
		}
		rec.PersonID = id
		slog.Debug("person id allocated", "id", id)

		if err := tx.InsertPerson(ctx, rec); err != nil {
			return insertFailure(EntityPerson, id, err)
		}
		return nil
	})
	if err != nil {
		return Person{}, storageFailure(EntityPerson, rec.PersonID, err)
	}

	slog.Info("person created", "id", rec.PersonID, "source", SourceFromContext(ctx))
	return rec, nil
}

// CreateVehicle validates in, allocates vehicle_id and crash_unit_id and
// stores it. The crash reference is required.
func (s *Service) CreateVehicle(ctx context.Context, in VehicleInput) (rec Vehicle, err error) {
	start := time.Now()
	defer func() { s.observe(EntityVehicle, "create", err, start) }()

	v := validateVehicle(in, s.now())
	if in.CrashRecordID == "" {
		v = append([]ValidationError{{Field: ColCrashRecordID, Reason: ReasonMalformed, Message: "is required"}}, v...)
	}
	if len(v) > 0 {
		return Vehicle{}, validationFailure(EntityVehicle, v)
	}

	rec = vehicleFromInput(in)
	err = s.withTx(ctx, func(tx Tx) error {
		refs := []ReferenceCheck{{Field: ColCrashRecordID, Ref: RefCrash, Value: rec.CrashRecordID}}
		if err := checkReferences(ctx, tx, EntityVehicle, refs); err != nil {
			return err
		}

		id, err := NextSequence(ctx, tx, VehicleIDSequence)
		if err != nil {
			return err
		}
		unit, err := NextSequence(ctx, tx, CrashUnitIDSequence)
		if err != nil {
			return err
		}
		rec.VehicleID, rec.CrashUnitID = id, unit
		slog.Debug("vehicle ids allocated", "vehicle_id", id, "crash_unit_id", unit)

		if err := tx.InsertVehicle(ctx, rec); err != nil {
			return insertFailure(EntityVehicle, strconv.FormatInt(id, 10), err)
		}
		return nil
	})
	if err != nil {
		key := ""
		if rec.VehicleID != 0 {
			key = strconv.FormatInt(rec.VehicleID, 10)
		}
		return Vehicle{}, storageFailure(EntityVehicle, key, err)
	}

	slog.Info("vehicle created", "id", rec.VehicleID, "crash_unit_id", rec.CrashUnitID, "source", SourceFromContext(ctx))
	return rec, nil
}

// checkReferences turns missing parents into a ReferenceNotFound failure.
func checkReferences(ctx context.Context, tx Tx, entity Entity, refs []ReferenceCheck) error {
	missing, err := CheckReferences(ctx, tx, refs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &Failure{Kind: KindReferenceNotFound, Entity: entity, Violations: missing}
	}
	return nil
}

// insertFailure classifies an insert error for a sequentially keyed record.
// A key collision means another writer allocated the same id first.
func insertFailure(entity Entity, key string, err error) error {
	switch {
	case errors.Is(err, ErrConflict):
		return &Failure{Kind: KindStorageFailure, Entity: entity, Key: key, Conflict: true, Err: err}
	case errors.Is(err, ErrForeignKey):
		// A parent vanished between the reference check and the insert.
		return &Failure{Kind: KindReferenceNotFound, Entity: entity, Key: key, Err: err}
	default:
		return fmt.Errorf("insert %s: %w", entity, err)
	}
}

func personReferences(p Person) []ReferenceCheck {
	var refs []ReferenceCheck
	if p.CrashRecordID != nil && *p.CrashRecordID != "" {
		refs = append(refs, ReferenceCheck{Field: ColCrashRecordID, Ref: RefCrash, Value: *p.CrashRecordID})
	}
	if p.VehicleID != nil {
		refs = append(refs, ReferenceCheck{Field: ColVehicleID, Ref: RefVehicle, Value: *p.VehicleID})
	}
	return refs
}

func personFromInput(in PersonInput) Person {
	p := Person{
		PersonType:           in.PersonType,
		CrashRecordID:        in.CrashRecordID,
		VehicleID:            in.VehicleID,
		Sex:                  in.Sex,
		Age:                  in.Age,
		SafetyEquipment:      in.SafetyEquipment,
		AirbagDeployed:       in.AirbagDeployed,
		InjuryClassification: in.InjuryClassification,
	}
	if p.CrashRecordID != nil && *p.CrashRecordID == "" {
		p.CrashRecordID = nil
	}
	return p
}

func vehicleFromInput(in VehicleInput) Vehicle {
	return Vehicle{
		CrashRecordID: in.CrashRecordID,
		UnitNo:        in.UnitNo,
		UnitType:      in.UnitType,
		NumPassengers: in.NumPassengers,
		VehicleYear:   in.VehicleYear,
		Make:          in.Make,
		Model:         in.Model,
		VehicleType:   in.VehicleType,
	}
}
