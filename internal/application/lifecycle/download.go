package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/service"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// Package 打包后的下载内容
type Package struct {
	Name        string
	ContentType string
	Content     []byte
}

// Packager 把规格文档打包为可下载内容
type Packager interface {
	Package(ctx context.Context, project *entity.Project, doc *entity.GeneratedDocument, artifact *entity.ResearchArtifact) (*Package, error)
}

// MarkdownPackager 输出单个 Markdown 文件
type MarkdownPackager struct{}

func (MarkdownPackager) Package(_ context.Context, project *entity.Project, doc *entity.GeneratedDocument, artifact *entity.ResearchArtifact) (*Package, error) {
	if strings.TrimSpace(doc.FullText) == "" {
		return nil, apperrors.Newf(apperrors.CodeNotReady, "document %s has no content", doc.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<!-- project: %s, version: %d, quality: %d -->\n\n", project.Name, project.Version, doc.QualityScore)
	b.WriteString(strings.TrimSpace(doc.FullText))
	b.WriteString("\n")

	if artifact != nil && artifact.CompetitiveGaps != nil {
		gaps := artifact.CompetitiveGaps
		b.WriteString("\n## Appendix: positioning\n\n")
		if gaps.UniqueAngle != "" {
			b.WriteString(gaps.UniqueAngle + "\n\n")
		}
		if len(gaps.MVPScope) > 0 {
			b.WriteString("MVP scope:\n")
			for _, s := range gaps.MVPScope {
				b.WriteString("- " + s + "\n")
			}
		}
	}

	return &Package{
		Name:        fmt.Sprintf("%s-v%d-spec.md", slugify(project.Name), project.Version),
		ContentType: "text/markdown; charset=utf-8",
		Content:     []byte(b.String()),
	}, nil
}

// Download 打包已完成项目的文档并记录下载；首次下载后文档锁定
func (c *Controller) Download(ctx context.Context, projectID, ownerID string) (*Package, error) {
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.requireStatus(project, entity.ProjectStatusComplete, "download"); err != nil {
		return nil, err
	}
	doc, err := c.repos.Documents.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if doc == nil || !doc.IsComplete() {
		return nil, apperrors.New(apperrors.CodeNotReady, "document is not complete")
	}
	artifact, err := c.repos.Research.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	pkg, err := c.packager.Package(ctx, project, doc, artifact)
	if err != nil {
		return nil, err
	}

	event := &entity.DownloadEvent{
		ProjectID:    projectID,
		DocumentID:   doc.ID,
		OwnerID:      ownerID,
		ArtifactName: pkg.Name,
		ContentType:  pkg.ContentType,
		SizeBytes:    int64(len(pkg.Content)),
	}
	err = c.repos.Transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.repos.Downloads.Create(txCtx, event); err != nil {
			return err
		}
		if err := c.repos.Projects.IncrementDownloadCount(txCtx, projectID); err != nil {
			return err
		}
		if doc.Locked {
			return nil
		}
		return c.repos.Documents.Lock(txCtx, doc.ID)
	})
	if err != nil {
		return nil, err
	}

	metrics.DownloadTotal.Inc()
	logger.Info(ctx, "document downloaded",
		"project_id", projectID,
		"document_id", doc.ID,
		"size_bytes", event.SizeBytes,
	)
	c.publish(ctx, project, service.EventDocumentDownload, map[string]any{
		"document_id":   doc.ID,
		"artifact_name": pkg.Name,
	})
	return pkg, nil
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "project"
	}
	return out
}
