package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// S3GetObjectAPI is the subset of the S3 client used to fetch documents.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadDocuments reads a YAML or JSON document list from a local path or an
// s3://bucket/key URL. The s3 client is only needed for s3 URLs.
func LoadDocuments(ctx context.Context, location string, client S3GetObjectAPI) ([]DocumentInput, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(location, "s3://") {
		data, err = readS3(ctx, client, location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, err
	}
	return ParseDocuments(path.Ext(location), data)
}

// ParseDocuments decodes a document list. ext selects JSON for ".json" and
// YAML otherwise.
func ParseDocuments(ext string, data []byte) ([]DocumentInput, error) {
	var docs []DocumentInput
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("knowledge: decode json documents: %w", err)
		}
		return docs, nil
	}
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&docs); err != nil && err != io.EOF {
		return nil, fmt.Errorf("knowledge: decode yaml documents: %w", err)
	}
	return docs, nil
}

func readS3(ctx context.Context, client S3GetObjectAPI, location string) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("knowledge: s3 client required for %s", location)
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse %s: %w", location, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("knowledge: s3 location must be s3://bucket/key, got %s", location)
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: fetch %s: %w", location, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
