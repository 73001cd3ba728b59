package triage

import "strconv"

// qualityWarnings returns data-quality warnings for the intake, deduplicated
// in check order. Checks are independent per field and catch obvious unit
// and range errors (SpO2 > 100, Fahrenheit-looking temperatures), nothing
// diagnostic. Warnings never reject an intake; the pipeline still produces a
// tier on bad input.
func qualityWarnings(intake *PatientIntake) []string {
	var w []string

	if age, ok := demographicAge(intake.Demographics); ok {
		if age < 0 {
			w = append(w, "Age < 0 (input error)")
		} else if age > 120 {
			w = append(w, "Age > 120 (check units/input)")
		}
	}

	w = append(w, vitalsWarnings(intake.Vitals)...)
	return dedupe(w)
}

func vitalsWarnings(v Vitals) []string {
	var w []string

	if hr := v.HeartRate; hr != nil {
		if *hr <= 0 {
			w = append(w, "Heart rate <= 0 (input error)")
		} else if *hr < 20 || *hr > 250 {
			w = append(w, "Heart rate out of plausible range (check units/input)")
		}
	}

	sbp, dbp := v.SystolicBP, v.DiastolicBP
	if sbp != nil {
		if *sbp <= 0 {
			w = append(w, "Systolic BP <= 0 (input error)")
		} else if *sbp < 50 || *sbp > 250 {
			w = append(w, "Systolic BP out of plausible range (check units/input)")
		}
	}
	if dbp != nil {
		if *dbp <= 0 {
			w = append(w, "Diastolic BP <= 0 (input error)")
		} else if *dbp < 30 || *dbp > 160 {
			w = append(w, "Diastolic BP out of plausible range (check units/input)")
		}
	}
	if sbp != nil && dbp != nil && *sbp > 0 && *dbp > 0 && *dbp >= *sbp {
		w = append(w, "Diastolic BP >= systolic BP (input error)")
	}

	if t := v.TemperatureC; t != nil {
		if *t < 25 {
			w = append(w, "Temp < 25C (possible Fahrenheit / input error)")
		} else if *t > 45 {
			w = append(w, "Temp > 45C (input error)")
		}
	}

	if s := v.SpO2; s != nil {
		if *s < 0 {
			w = append(w, "SpO2 < 0 (input error)")
		} else if *s > 100 {
			w = append(w, "SpO2 > 100 (input error)")
		}
	}

	if rr := v.RespiratoryRate; rr != nil {
		if *rr <= 0 {
			w = append(w, "Respiratory rate <= 0 (input error)")
		} else if *rr < 4 || *rr > 80 {
			w = append(w, "Respiratory rate out of plausible range (check units/input)")
		}
	}

	return w
}

// demographicAge extracts an age from the open demographics map when it is
// numeric or a numeric string.
func demographicAge(demo map[string]string) (float64, bool) {
	raw, ok := demo["age"]
	if !ok || raw == "" {
		return 0, false
	}
	age, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return age, true
}
