package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeS3 is an in-memory s3Client
type fakeS3 struct {
	objects     map[string][]byte
	contentType map[string]string
	putErr      error
	getErr      error
	deleteErr   error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.contentType[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

var _ = Describe("S3Store", func() {
	var (
		ctx   context.Context
		fake  *fakeS3
		store *S3Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = newFakeS3()
		store = newS3StoreWithClient(fake, "receipts")
	})

	It("puts objects in the bucket with their content type", func() {
		Expect(store.Put(ctx, "u/1.jpg", []byte("img"), "image/jpeg")).To(Succeed())
		Expect(fake.objects).To(HaveKeyWithValue("receipts/u/1.jpg", []byte("img")))
		Expect(fake.contentType["receipts/u/1.jpg"]).To(Equal("image/jpeg"))
	})

	It("reads objects back", func() {
		Expect(store.Put(ctx, "u/1.jpg", []byte("img"), "")).To(Succeed())
		data, err := store.Get(ctx, "u/1.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("img")))
	})

	It("deletes objects", func() {
		Expect(store.Put(ctx, "u/1.jpg", []byte("img"), "")).To(Succeed())
		Expect(store.Delete(ctx, "u/1.jpg")).To(Succeed())
		Expect(fake.objects).To(BeEmpty())
	})

	It("wraps client errors", func() {
		fake.putErr = errors.New("AccessDenied")
		Expect(store.Put(ctx, "u/1.jpg", []byte("img"), "")).To(MatchError(ContainSubstring("uploading u/1.jpg: AccessDenied")))
	})

	It("rejects invalid keys before calling the client", func() {
		Expect(store.Put(ctx, "../x", []byte("img"), "")).To(MatchError(ErrInvalidKey))
		Expect(fake.objects).To(BeEmpty())
	})

	Describe("NewS3Store", func() {
		It("requires a bucket", func() {
			_, err := NewS3Store(S3Config{AccessKey: "a", SecretKey: "b"})
			Expect(err).To(MatchError(ContainSubstring("bucket is required")))
		})

		It("requires credentials", func() {
			_, err := NewS3Store(S3Config{Bucket: "receipts"})
			Expect(err).To(MatchError(ContainSubstring("credentials are required")))
		})

		It("builds a store with an endpoint", func() {
			s, err := NewS3Store(S3Config{Bucket: "receipts", AccessKey: "a", SecretKey: "b", Endpoint: "http://localhost:9000"})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.bucket).To(Equal("receipts"))
		})
	})
})
