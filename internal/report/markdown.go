// Package report renders a finished run as a Markdown document.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"govaffairs-crawler/internal/app"
	"govaffairs-crawler/internal/normalize"
)

const (
	fileTimeLayout = "20060102_150405"
	// maxTitleRunes bounds link text in the new-record lists.
	maxTitleRunes = 80
)

// Render builds the Markdown report for r.
func Render(r *app.RunReport) string {
	crawled, newRecords := r.Totals()

	var b strings.Builder
	b.WriteString("# 爬虫运行报告\n\n")
	fmt.Fprintf(&b, "**运行时间**: %s - %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.FinishedAt.Local().Format("15:04:05"))
	fmt.Fprintf(&b, "**运行ID**: %s\n", r.RunID)
	fmt.Fprintf(&b, "**处理配置**: %d 个\n", len(r.Targets))
	fmt.Fprintf(&b, "**总计数据项**: %d\n", crawled)
	fmt.Fprintf(&b, "**本次新增**: %d\n", newRecords)
	b.WriteString("\n---\n\n")

	for i, t := range r.Targets {
		fmt.Fprintf(&b, "## %d. %s (%s)\n\n", i+1, t.Name, t.Key)
		fmt.Fprintf(&b, "- **URL**: %s\n", t.URL)
		fmt.Fprintf(&b, "- **爬虫类型**: %s\n", t.AdapterType)
		fmt.Fprintf(&b, "- **状态**: %s\n", t.Status)
		fmt.Fprintf(&b, "- **爬取页数**: %d\n", t.PagesFetched)
		fmt.Fprintf(&b, "- **爬取结果数**: %d\n", t.CrawledCount)
		fmt.Fprintf(&b, "- **新增数量**: %d\n", t.NewRecordCount)
		fmt.Fprintf(&b, "- **总计数据项**: %d\n", t.TotalRecordCount)
		if t.Error != "" {
			fmt.Fprintf(&b, "- **错误**: %s\n", t.Error)
		}
		b.WriteString("\n")

		if len(t.NewRecords) > 0 {
			fmt.Fprintf(&b, "### 本次新增项目 (%d 项)\n\n", len(t.NewRecords))
			for j, rec := range t.NewRecords {
				fmt.Fprintf(&b, "%d. [%s](%s)\n", j+1, escapeLinkText(normalize.Truncate(rec.Title, maxTitleRunes)), rec.URL)
			}
			b.WriteString("\n")
		} else {
			b.WriteString("*本次运行未发现新项目*\n\n")
		}

		b.WriteString("---\n\n")
	}

	return b.String()
}

// Write renders r into dir/result_YYYYMMDD_HHMMSS.md and returns the path.
func Write(r *app.RunReport, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("result_%s.md", r.StartedAt.Local().Format(fileTimeLayout)))
	if err := os.WriteFile(path, []byte(Render(r)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

var linkTextEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`)

func escapeLinkText(s string) string {
	return linkTextEscaper.Replace(s)
}
