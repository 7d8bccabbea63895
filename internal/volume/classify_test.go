package volume

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestPathClassifierLinux(t *testing.T) {
	c := &PathClassifier{Policy: DefaultPolicy("linux")}
	const gb = 1 << 30

	tests := []struct {
		name string
		info DetectionInfo
		want VolumeType
	}{
		{"root", DetectionInfo{MountPath: "/", FileSystem: FSExt4, TotalCapacity: gb}, TypePrimary},
		{"home", DetectionInfo{MountPath: "/home", FileSystem: FSExt4, TotalCapacity: gb}, TypeUserData},
		{"boot", DetectionInfo{MountPath: "/boot", FileSystem: FSFAT32, TotalCapacity: gb}, TypeSystem},
		{"efi under boot", DetectionInfo{MountPath: "/boot/efi", FileSystem: FSFAT32, TotalCapacity: gb}, TypeSystem},
		{"mnt", DetectionInfo{MountPath: "/mnt/data/", FileSystem: FSXFS, TotalCapacity: gb}, TypeSecondary},
		{"removable wins over path", DetectionInfo{MountPath: "/media/usb", FileSystem: FSExFAT, TotalCapacity: gb, Removable: true}, TypeExternal},
		{"network flag", DetectionInfo{MountPath: "/mnt/nas", FileSystem: FSExt4, TotalCapacity: gb, Network: boolPtr(true)}, TypeNetwork},
		{"network fs", DetectionInfo{MountPath: "/mnt/nfs", FileSystem: FSNFS, TotalCapacity: gb}, TypeNetwork},
		{"network flag false", DetectionInfo{MountPath: "/mnt/x", FileSystem: FSExt4, TotalCapacity: gb, Network: boolPtr(false)}, TypeSecondary},
		{"zero capacity", DetectionInfo{MountPath: "/mnt/empty", FileSystem: FSExt4}, TypeVirtual},
		{"unknown", DetectionInfo{MountPath: "/opt/stuff", FileSystem: FSExt4, TotalCapacity: gb}, TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.info); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.info.MountPath, got, tt.want)
			}
		})
	}
}

func TestPathClassifierDarwin(t *testing.T) {
	c := &PathClassifier{Policy: DefaultPolicy("darwin"), Style: DarwinPaths}
	info := func(p string) DetectionInfo {
		return DetectionInfo{MountPath: p, FileSystem: FSAPFS, TotalCapacity: 1 << 30}
	}
	if got := c.Classify(info("/")); got != TypeSystem {
		t.Errorf("sealed root: got %s", got)
	}
	if got := c.Classify(info("/System/Volumes/Data")); got != TypePrimary {
		t.Errorf("data volume: got %s", got)
	}
	if got := c.Classify(info("/System/Volumes/VM")); got != TypeSystem {
		t.Errorf("vm volume: got %s", got)
	}
	if got := c.Classify(info("/Volumes/Backup")); got != TypeSecondary {
		t.Errorf("secondary: got %s", got)
	}
}

func TestPathClassifierWindows(t *testing.T) {
	c := &PathClassifier{Policy: DefaultPolicy("windows"), Style: WindowsPaths}
	info := func(p string) DetectionInfo {
		return DetectionInfo{MountPath: p, FileSystem: FSNTFS, TotalCapacity: 1 << 30}
	}
	if got := c.Classify(info(`C:\`)); got != TypePrimary {
		t.Errorf("C: got %s", got)
	}
	if got := c.Classify(info(`d:\`)); got != TypeSecondary {
		t.Errorf("D: got %s", got)
	}
	if got := c.Classify(info(`\\?\E:\`)); got != TypeSecondary {
		t.Errorf("extended E: got %s", got)
	}
}

func TestCustomPolicy(t *testing.T) {
	c := &PathClassifier{Policy: ClassifierPolicy{UserDataPaths: []string{"/data/*"}}}
	got := c.Classify(DetectionInfo{MountPath: "/data/alice", FileSystem: FSExt4, TotalCapacity: 1})
	if got != TypeUserData {
		t.Errorf("got %s, want user_data", got)
	}
}

func TestClassifierFunc(t *testing.T) {
	var c Classifier = ClassifierFunc(func(DetectionInfo) VolumeType { return TypeSecondary })
	if c.Classify(DetectionInfo{}) != TypeSecondary {
		t.Error("ClassifierFunc not applied")
	}
}

func TestMountTypeFor(t *testing.T) {
	cases := map[VolumeType]MountType{
		TypeSystem:    MountSystem,
		TypeVirtual:   MountSystem,
		TypeExternal:  MountExternal,
		TypeNetwork:   MountNetwork,
		TypePrimary:   MountUser,
		TypeSecondary: MountUser,
	}
	for vt, want := range cases {
		if got := MountTypeFor(vt); got != want {
			t.Errorf("MountTypeFor(%s) = %s, want %s", vt, got, want)
		}
	}
}
