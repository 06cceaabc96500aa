package testutil

// X64Add is add(a, b) for the Windows x64 calling convention. It is ten
// bytes long and ends in a RET.
var X64Add = []byte{
	0x55,             // push rbp
	0x48, 0x89, 0xe5, // mov rbp, rsp
	0x89, 0xc8, // mov eax, ecx
	0x01, 0xd0, // add eax, edx
	0x5d, // pop rbp
	0xc3, // ret
}

// X64Pair is two functions back to back: X64Add at offset 0 and
// `xor eax, eax; ret` at offset 0x10, padded with int3.
var X64Pair = append(append(append([]byte{}, X64Add...),
	0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc),
	0x31, 0xc0, // xor eax, eax
	0xc3, // ret
)

// ARM64Ret is `mov x0, #0; ret` for AArch64.
var ARM64Ret = []byte{
	0x00, 0x00, 0x80, 0xd2, // mov x0, #0
	0xc0, 0x03, 0x5f, 0xd6, // ret
}
