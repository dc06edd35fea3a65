package session

import (
	"context"
	"log"
	"strings"
	"time"
)

const licenseRowCSS = "tr"

var (
	licenseButton    = byText("button", "Download license")
	anyLicenseButton = byText("button", "license")
)

// FetchLicense finds resourceName in the account's download history and
// downloads its license. An empty name falls back to the latest row.
func (d *Driver) FetchLicense(ctx context.Context, resourceName string) (string, error) {
	if err := d.machine.To(StateFetchingLicense); err != nil {
		return "", err
	}
	fail := func(reason string, err error) error {
		return d.machine.Fail(&Error{Stage: StageFetchLicense, Kind: KindLicenseNotFound, Reason: reason, Err: err})
	}

	if err := d.page.Navigate(ctx, downloadsURL); err != nil {
		return "", fail("download history did not load", err)
	}
	_ = pause(ctx, d.cfg.Settle)
	d.dismissConsent(ctx)
	if ok, _ := d.page.Visible(ctx, byCSS(licenseRowCSS), 10*time.Second); !ok {
		log.Printf("Session: download history shows no rows yet")
	}

	rows, err := d.page.Contents(ctx, licenseRowCSS)
	if err != nil {
		log.Printf("Session: reading download history: %v", err)
	}
	stem := OriginalStem(resourceName)

	var dl *FileDownload
	grab := func(sel Sel) (bool, error) {
		if ok, _ := d.page.Visible(ctx, sel, time.Second); !ok {
			return false, nil
		}
		got, err := d.page.ExpectDownload(ctx, d.cfg.LicenseTimeout, func(ctx context.Context) error {
			return d.page.Click(ctx, sel)
		})
		if err != nil {
			return false, err
		}
		dl = got
		return true, nil
	}
	row := func(pick func() int, button Sel) func(context.Context) (bool, error) {
		return func(ctx context.Context) (bool, error) {
			i := pick()
			if i < 0 {
				return false, nil
			}
			return grab(inRow(i, button))
		}
	}

	how, err := Cascade(ctx, "license", []Strategy{
		{Name: "exact row", Attempt: row(func() int { return exactRow(rows, stem) }, licenseButton)},
		{Name: "fuzzy row", Attempt: row(func() int { return fuzzyRow(rows, stem) }, anyLicenseButton)},
		{Name: "latest row", Attempt: row(func() int { return latestLicenseRow(rows) }, licenseButton)},
		{Name: "any license control", Attempt: func(ctx context.Context) (bool, error) {
			if ok, err := grab(licenseButton); ok || err != nil {
				return ok, err
			}
			return grab(byText("button", "License"))
		}},
	})
	if err != nil {
		return "", fail("", ctxErr(ctx, err))
	}
	log.Printf("Session: license found by %s", how)

	path, err := d.keep(dl)
	if err != nil {
		return "", fail("could not store the file", err)
	}
	log.Printf("Session: license saved to %s", path)
	return path, d.machine.To(StateDone)
}

// latestLicenseRow is the first row offering a license download; the history
// lists newest first.
func latestLicenseRow(rows []string) int {
	for i, r := range rows {
		if strings.Contains(strings.ToLower(r), "download license") {
			return i
		}
	}
	return -1
}
