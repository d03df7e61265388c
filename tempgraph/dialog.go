package main

import (
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/probe"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// paramsDialog collects the run parameters before acquisition starts.
type paramsDialog struct {
	cfg     *config.Config
	path    string
	log     *logrus.Entry
	app     fyne.App
	window  fyne.Window
	result  config.Params
	portMap map[string]string
}

// askParams shows the parameter window and blocks until it is submitted or
// closed. Closing the window cancels the run.
func askParams(cfg *config.Config, path string, log *logrus.Entry) config.Params {
	d := &paramsDialog{
		cfg:     cfg,
		path:    path,
		log:     log,
		result:  config.Params{Cancelled: true},
		portMap: make(map[string]string),
	}

	d.app = app.NewWithID("com.itohio.tempgraph")
	d.window = d.app.NewWindow("Temperature Graph")
	d.window.Resize(fyne.NewSize(520, 560))
	d.window.CenterOnScreen()

	tabs := container.NewAppTabs(
		d.createRunTab(),
		d.createConnectionTab(),
	)
	d.window.SetContent(container.NewBorder(nil, nil, nil, nil, tabs))
	d.window.ShowAndRun()

	if d.result.Cancelled {
		log.Info("Run cancelled from the parameter window")
	}
	return d.result
}

func intEntry(v int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(v))
	return e
}

func parseInt(label, text string) (int, error) {
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.Errorf("%s must be a whole number", label)
	}
	return v, nil
}

// createRunTab creates the run parameter form.
func (d *paramsDialog) createRunTab() *container.TabItem {
	run := d.cfg.Run

	titleEntry := widget.NewEntry()
	titleEntry.SetText(run.Title)

	commentEntry := widget.NewMultiLineEntry()
	commentEntry.SetText(run.Comment)

	backgroundSelect := widget.NewSelect([]string{config.BackgroundBlack, config.BackgroundWhite, config.BackgroundBoth}, nil)
	backgroundSelect.SetSelected(run.Background)

	heightEntry := intEntry(run.Height)
	countEntry := intEntry(run.MaxMeasurements)
	daysEntry := intEntry(run.IntervalDays)
	hoursEntry := intEntry(run.IntervalHours)
	minutesEntry := intEntry(run.IntervalMinutes)

	directoryEntry := widget.NewEntry()
	directoryEntry.SetText(run.Directory)

	filenameEntry := widget.NewEntry()
	filenameEntry.SetText(run.Filename)

	overwriteCheck := widget.NewCheck("Overwrite existing results", nil)
	overwriteCheck.SetChecked(run.Overwrite)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Graph Title", Widget: titleEntry},
			{Text: "Comment", Widget: commentEntry},
			{Text: "Background", Widget: backgroundSelect},
			{Text: fmt.Sprintf("Height (%d-%d px)", config.MinHeight, config.MaxHeight), Widget: heightEntry},
			{Text: "Measurements", Widget: countEntry},
			{Text: "Interval Days", Widget: daysEntry},
			{Text: "Interval Hours", Widget: hoursEntry},
			{Text: "Interval Minutes", Widget: minutesEntry},
			{Text: "Directory", Widget: directoryEntry},
			{Text: "File Name", Widget: filenameEntry},
			{Text: "", Widget: overwriteCheck},
		},
		SubmitText: "Start",
		CancelText: "Cancel",
		OnCancel: func() {
			d.app.Quit()
		},
	}
	form.OnSubmit = func() {
		next := d.cfg.Run
		next.Title = titleEntry.Text
		next.Comment = commentEntry.Text
		next.Background = backgroundSelect.Selected
		next.Directory = directoryEntry.Text
		next.Filename = filenameEntry.Text
		next.Overwrite = overwriteCheck.Checked

		ints := []struct {
			label string
			entry *widget.Entry
			dst   *int
		}{
			{"Height", heightEntry, &next.Height},
			{"Measurements", countEntry, &next.MaxMeasurements},
			{"Interval Days", daysEntry, &next.IntervalDays},
			{"Interval Hours", hoursEntry, &next.IntervalHours},
			{"Interval Minutes", minutesEntry, &next.IntervalMinutes},
		}
		for _, f := range ints {
			v, err := parseInt(f.label, f.entry.Text)
			if err != nil {
				dialog.ShowError(err, d.window)
				return
			}
			*f.dst = v
		}

		params, err := next.Params()
		if err != nil {
			dialog.ShowError(err, d.window)
			return
		}

		d.cfg.Run = next
		if err := d.cfg.Save(d.path); err != nil {
			d.log.WithError(err).Warn("Failed to save run parameters")
		}
		d.result = params
		d.app.Quit()
	}

	return container.NewTabItem("Run", form)
}

// createConnectionTab creates the transport selection form.
func (d *paramsDialog) createConnectionTab() *container.TabItem {
	transportSelect := widget.NewSelect([]string{config.TransportSerial, config.TransportSocket, config.TransportMock}, nil)
	transportSelect.SetSelected(d.cfg.Transport)

	portSelect := widget.NewSelect(d.portOptions(), nil)
	for display, name := range d.portMap {
		if name == d.cfg.Serial.Port {
			portSelect.SetSelected(display)
			break
		}
	}

	listenEntry := widget.NewEntry()
	listenEntry.SetText(d.cfg.Socket.Listen)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Transport", Widget: transportSelect},
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Socket Listen", Widget: listenEntry},
		},
		SubmitText: "Apply",
		OnSubmit: func() {
			d.cfg.Transport = transportSelect.Selected
			if portSelect.Selected != "" {
				if name := d.portMap[portSelect.Selected]; name != "" {
					d.cfg.Serial.Port = name
				} else {
					d.cfg.Serial.Port = portSelect.Selected
				}
			}
			d.cfg.Socket.Listen = listenEntry.Text
			if err := d.cfg.Save(d.path); err != nil {
				dialog.ShowError(errors.Wrap(err, "failed to save config"), d.window)
			}
		},
	}

	return container.NewTabItem("Connection", form)
}

// portOptions lists the serial ports with descriptions, keeping the configured
// port even when it is not currently attached.
func (d *paramsDialog) portOptions() []string {
	var options []string
	ports, err := probe.Ports()
	if err != nil {
		d.log.WithError(err).Warn("Failed to list serial ports")
	}
	for _, p := range ports {
		display := portLabel(p)
		options = append(options, display)
		d.portMap[display] = p.Name
	}

	current := d.cfg.Serial.Port
	for _, name := range d.portMap {
		if name == current {
			return options
		}
	}
	if current != "" {
		options = append(options, current)
		d.portMap[current] = current
	}
	return options
}

// portLabel is the text shown for p in the port list.
func portLabel(p probe.Port) string {
	if p.Description == "" {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Description)
}
