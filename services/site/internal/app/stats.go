package app

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/xuri/excelize/v2"

	"aercd/pkg/domain"
)

const (
	topDownloadedLimit = 5
	exportSheet        = "Ressources"
	statsSheet         = "Statistiques"
)

// Stats aggregates the collection for the admin dashboard.
func (a *App) Stats(user domain.User) (domain.Stats, error) {
	if !user.IsAdmin() {
		return domain.Stats{}, ErrForbidden
	}
	return computeStats(a.registry.DepartmentIDs(), a.store.ListResources()), nil
}

func computeStats(departmentIDs []string, resources []domain.CourseResource) domain.Stats {
	stats := domain.Stats{
		TotalResources: len(resources),
		ByDepartment:   make([]domain.DepartmentStats, 0, len(departmentIDs)),
		ByType:         make(map[domain.ResourceType]int, len(domain.ResourceTypes)),
		ByLevel:        make(map[domain.Level]int, len(domain.Levels)),
	}
	for _, t := range domain.ResourceTypes {
		stats.ByType[t] = 0
	}
	for _, l := range domain.Levels {
		stats.ByLevel[l] = 0
	}
	deptIndex := make(map[string]int, len(departmentIDs))
	for _, id := range departmentIDs {
		deptIndex[id] = len(stats.ByDepartment)
		stats.ByDepartment = append(stats.ByDepartment, domain.DepartmentStats{DepartmentID: id})
	}
	for _, r := range resources {
		stats.TotalDownloads += r.Downloads
		stats.ByType[r.Type]++
		stats.ByLevel[r.Level]++
		i, ok := deptIndex[r.DepartmentID]
		if !ok {
			i = len(stats.ByDepartment)
			deptIndex[r.DepartmentID] = i
			stats.ByDepartment = append(stats.ByDepartment, domain.DepartmentStats{DepartmentID: r.DepartmentID})
		}
		stats.ByDepartment[i].Resources++
		stats.ByDepartment[i].Downloads += r.Downloads
	}
	top := slices.Clone(resources)
	slices.SortStableFunc(top, func(x, y domain.CourseResource) int {
		return cmp.Compare(y.Downloads, x.Downloads)
	})
	if len(top) > topDownloadedLimit {
		top = top[:topDownloadedLimit]
	}
	stats.TopDownloaded = top
	return stats
}

var exportHeader = []any{
	"ID", "Titre", "Type", "UFR", "Département", "Niveau", "Matière",
	"Auteur", "Date d'ajout", "Téléchargements", "Taille", "Description",
}

// ExportResources writes the collection as an XLSX workbook: one row per
// resource on the "Ressources" sheet and the dashboard figures on
// "Statistiques".
func (a *App) ExportResources(user domain.User, w io.Writer) error {
	if !user.IsAdmin() {
		return ErrForbidden
	}
	resources := a.store.ListResources()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeResourceSheet(f, resources); err != nil {
		return err
	}
	if err := writeStatsSheet(f, computeStats(a.registry.DepartmentIDs(), resources)); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeResourceSheet(f *excelize.File, resources []domain.CourseResource) error {
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeader))
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	for i, r := range resources {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			r.ID, r.Title, string(r.Type), r.DepartmentID, r.SubDepartment, string(r.Level), r.Subject,
			r.Author, r.DateAdded.Format("2006-01-02"), r.Downloads, r.Size, r.Description,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(exportSheet, "B", "B", 48); err != nil {
		return err
	}
	if len(resources) > 0 {
		if err := f.AutoFilter(exportSheet, fmt.Sprintf("A1:%s%d", lastCol, len(resources)+1), nil); err != nil {
			return fmt.Errorf("auto filter: %w", err)
		}
	}
	return nil
}

func writeStatsSheet(f *excelize.File, stats domain.Stats) error {
	if _, err := f.NewSheet(statsSheet); err != nil {
		return fmt.Errorf("create stats sheet: %w", err)
	}
	rows := [][]any{
		{"Ressources", stats.TotalResources},
		{"Téléchargements", stats.TotalDownloads},
		{},
		{"UFR", "Ressources", "Téléchargements"},
	}
	for _, d := range stats.ByDepartment {
		rows = append(rows, []any{d.DepartmentID, d.Resources, d.Downloads})
	}
	rows = append(rows, []any{}, []any{"Type", "Ressources"})
	for _, t := range domain.ResourceTypes {
		rows = append(rows, []any{string(t), stats.ByType[t]})
	}
	rows = append(rows, []any{}, []any{"Niveau", "Ressources"})
	for _, l := range domain.Levels {
		rows = append(rows, []any{string(l), stats.ByLevel[l]})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(statsSheet, cell, &row); err != nil {
			return fmt.Errorf("write stats row %d: %w", i+1, err)
		}
	}
	return nil
}
